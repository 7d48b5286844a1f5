package redis

import "fmt"

const ns = "bustix:v1"

func KeyRoute(routeID string) string {
	return fmt.Sprintf("%s:route:%s", ns, routeID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemBooking(userID, idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%s:%s", ns, userID, idemKey)
}

func ChannelRoutesChanged() string {
	return ns + ":routes:changed"
}
