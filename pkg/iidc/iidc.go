// Package iidc implements control and capture for IIDC/DCAM cameras on an
// IEEE 1394 bus.
//
// The package talks to cameras through a Transport, which performs raw
// quadlet transactions and isochronous delivery. Bus discovery is not part
// of this package; callers hand Open the node and unit directory they found.
//
// # Opening a camera
//
//	cam, err := iidc.Open(bus, iidc.DeviceInfo{Port: 0, Node: 0xffc0, UnitDirectory: 0x438})
//	if err != nil {
//	    return err
//	}
//	defer cam.Close()
//
// # Features
//
//	f, _ := cam.Feature(iidc.FeatureShutter)
//	if f.Readable() {
//	    err = cam.SetFeatureValue(iidc.FeatureShutter, f.Max/2)
//	}
//
// # Capture
//
//	_ = cam.SetVideoMode(iidc.Mode640x480Mono8)
//	_ = cam.SetFramerate(iidc.Framerate30)
//	capture, err := cam.SetupCapture(iidc.CaptureConfig{Buffers: 4, DropFrames: true, Speed: iidc.Speed400})
//	_ = cam.StartIsoTransmission()
//	frame, err := capture.Capture(ctx, iidc.CaptureWait)
//	// use frame.Data()
//	_ = capture.DoneWithBuffer(frame)
//	_ = capture.Release()
//
// Control calls are synchronous bus round trips and are not retried.
// Capture is the concurrent part: packets are assembled into a fixed ring of
// slots while the application dequeues filled slots by polling, blocking,
// or registering a callback with OnFrame.
package iidc
