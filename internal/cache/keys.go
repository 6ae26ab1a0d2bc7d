package cache

import "fmt"

const KeySchoolsAll = "schools:all"

func KeySchoolsClosest(lat, lon, distance float64) string {
	return fmt.Sprintf("schools:closest:%.4f:%.4f:%g", lat, lon, distance)
}
