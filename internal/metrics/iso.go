package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/iidcnode/pkg/iidc"
)

var (
	isoBandwidth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "iso",
		Name:      "bandwidth_units",
		Help:      "Isochronous bandwidth allocated to the camera",
	}, []string{"camera"})

	isoChannel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "iso",
		Name:      "channel",
		Help:      "Isochronous channel programmed into the camera, -1 when none",
	}, []string{"camera"})

	isoSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "iso",
		Name:      "speed_mbps",
		Help:      "Isochronous speed programmed into the camera",
	}, []string{"camera"})

	isoTransmitting = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "iso",
		Name:      "transmitting",
		Help:      "1 while the camera transmits",
	}, []string{"camera"})
)

// SetIsoState records a camera's streaming session.
func SetIsoState(camera string, st iidc.IsoState, units uint32) {
	isoBandwidth.WithLabelValues(camera).Set(float64(units))
	isoChannel.WithLabelValues(camera).Set(float64(st.Channel))
	isoSpeed.WithLabelValues(camera).Set(float64(st.Speed.Mbps()))
	on := 0.0
	if st.State == iidc.SessionTransmitting {
		on = 1
	}
	isoTransmitting.WithLabelValues(camera).Set(on)
}

// DeleteIsoMetrics removes the ISO metrics of a camera.
func DeleteIsoMetrics(camera string) {
	isoBandwidth.DeleteLabelValues(camera)
	isoChannel.DeleteLabelValues(camera)
	isoSpeed.DeleteLabelValues(camera)
	isoTransmitting.DeleteLabelValues(camera)
}
