// Package solar computes sunrise and sunset hours from a date and a location
// using the NOAA solar position approximation.
//
// See https://gml.noaa.gov/grad/solcalc/calcdetails.html for the reference
// spreadsheet the series below are taken from.
package solar

import (
	"math"
	"time"
)

// zenith is the sun altitude at sunrise/sunset including refraction and the
// solar disc radius.
const zenith = 90.833

// spreadsheetEpoch is day zero of the NOAA spreadsheet minus the two days
// corrected for below.
var spreadsheetEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Times holds sunrise and sunset as decimal hours in [0, 24)
type Times struct {
	Sunrise float64 `json:"sunrise"`
	Sunset  float64 `json:"sunset"`
}

// ValidLocation reports whether the coordinates can be used for computation
func ValidLocation(latitude, longitude float64) bool {
	return latitude >= -90 && latitude <= 90 && longitude >= -180 && longitude <= 180
}

// For computes the sun times of the day containing now, using the UTC offset
// of now's location.
func For(now time.Time, latitude, longitude, offset float64) Times {
	_, seconds := now.Zone()
	return Compute(now, float64(seconds)/3600, latitude, longitude, offset)
}

// Compute returns the sun times for the given moment, UTC offset in hours and
// location. The user offset is added to sunrise and subtracted from sunset.
//
// Polar days and nights have no sunrise; the hour angle is clamped so both
// times collapse onto the same hour.
func Compute(now time.Time, utcOffset, latitude, longitude, offset float64) Times {
	days := float64(now.Unix()-spreadsheetEpoch.Unix())/86400 + float64(now.Nanosecond())/86400e9
	date := days + 2

	julianDay := date + 2415018.5 - utcOffset/24
	julianCentury := (julianDay - 2451545) / 36525

	geomMeanLongSun := math.Mod(280.46646+julianCentury*(36000.76983+julianCentury*0.0003032), 360)
	geomMeanAnomSun := 357.52911 + julianCentury*(35999.05029-0.0001537*julianCentury)
	eccentEarthOrbit := 0.016708634 - julianCentury*(0.000042037+0.0000001267*julianCentury)

	sunEqOfCtr := math.Sin(rad(geomMeanAnomSun))*(1.914602-julianCentury*(0.004817+0.000014*julianCentury)) +
		math.Sin(rad(2*geomMeanAnomSun))*(0.019993-0.000101*julianCentury) +
		math.Sin(rad(3*geomMeanAnomSun))*0.000289
	sunTrueLong := geomMeanLongSun + sunEqOfCtr
	sunAppLong := sunTrueLong - 0.00569 - 0.00478*math.Sin(rad(125.04-1934.136*julianCentury))

	meanObliqEcliptic := 23 + (26+(21.448-julianCentury*(46.815+julianCentury*(0.00059-julianCentury*0.001813)))/60)/60
	obliqCorr := meanObliqEcliptic + 0.00256*math.Cos(rad(125.04-1934.136*julianCentury))
	sunDeclin := deg(math.Asin(math.Sin(rad(obliqCorr)) * math.Sin(rad(sunAppLong))))

	varY := math.Tan(rad(obliqCorr/2)) * math.Tan(rad(obliqCorr/2))
	eqOfTime := 4 * deg(varY*math.Sin(2*rad(geomMeanLongSun))-
		2*eccentEarthOrbit*math.Sin(rad(geomMeanAnomSun))+
		4*eccentEarthOrbit*varY*math.Sin(rad(geomMeanAnomSun))*math.Cos(2*rad(geomMeanLongSun))-
		0.5*varY*varY*math.Sin(4*rad(geomMeanLongSun))-
		1.25*eccentEarthOrbit*eccentEarthOrbit*math.Sin(2*rad(geomMeanAnomSun)))

	cosHourAngle := math.Cos(rad(zenith))/(math.Cos(rad(latitude))*math.Cos(rad(sunDeclin))) -
		math.Tan(rad(latitude))*math.Tan(rad(sunDeclin))
	haSunrise := deg(math.Acos(clamp(cosHourAngle)))

	solarNoon := (720 - 4*longitude - eqOfTime + utcOffset*60) / 1440

	timeSunrise := solarNoon - haSunrise*4/1440
	timeSunset := solarNoon + haSunrise*4/1440

	times := Times{
		Sunrise: modulo(timeSunrise*24+offset, 24),
		Sunset:  modulo(timeSunset*24-offset, 24),
	}
	if cosHourAngle <= -1 || cosHourAngle >= 1 || math.IsNaN(cosHourAngle) {
		times.Sunset = times.Sunrise
	}
	return times
}

func rad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func deg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// clamp bounds a cosine to [-1, 1]. Values above 1 mean the sun never rises.
func clamp(x float64) float64 {
	if math.IsNaN(x) {
		return 1
	}
	return math.Max(-1, math.Min(1, x))
}

// modulo is the floored modulo, always in [0, m)
func modulo(n, m float64) float64 {
	r := math.Mod(math.Mod(n, m)+m, m)
	if r >= m {
		return 0
	}
	return r
}
