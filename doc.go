// Package itla bridges a control loop and an ITLA laser-control device on a
// serial line.
//
// The device speaks a newline-terminated text protocol. Inbound lines are
// either telemetry frames such as
//
//	{"freq":193.5,"power":5.25,"temp":25.3}
//
// or free-form log text. Outbound commands are SET_FREQUENCY, SET_POWER,
// LASER_ON and LASER_OFF; the device never acknowledges them.
//
// A Link owns the serial transport. Connect starts one reader goroutine that
// reads lines with a bounded timeout, classifies them and queues the resulting
// events. The owning goroutine drains the queue with PollEvents at its own
// pace (once per UI tick, or whenever Ready fires) and is the only one that
// writes commands or changes link state.
//
// Example usage:
//
//	link := itla.NewLink(itla.WithLogger(logger))
//	if err := link.Connect("/dev/ttyUSB0", 115200); err != nil {
//	    log.Fatal(err)
//	}
//	defer link.Disconnect()
//
//	ticker := time.NewTicker(100 * time.Millisecond)
//	for range ticker.C {
//	    for _, ev := range link.PollEvents() {
//	        switch ev.Kind {
//	        case itla.EventTelemetry:
//	            fmt.Println(ev.Telemetry)
//	        case itla.EventLogText:
//	            fmt.Println(ev.Text)
//	        }
//	    }
//	    if link.CurrentState().Status == itla.Disconnected {
//	        return
//	    }
//	}
package itla
