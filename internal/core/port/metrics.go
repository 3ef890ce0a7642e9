package port

const (
	MetricRooms          = "rooms"
	MetricPeers          = "peers"
	MetricRouted         = "messages.routed"
	MetricDelivered      = "messages.delivered"
	MetricDropped        = "messages.dropped"
	MetricRouteFailures  = "messages.route_failures"
	MetricDecodeErrors   = "messages.decode_errors"
	MetricAuthRejections = "auth.rejections"
)

type Metrics interface {
	Incr(name string, n int64)
	Decr(name string, n int64)
}

type NopMetrics struct{}

func (NopMetrics) Incr(string, int64) {}
func (NopMetrics) Decr(string, int64) {}
