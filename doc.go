// Package gofhem provides a Go client for the FHEM home automation
// server, covering both access paths FHEM exposes: synchronous command
// execution over telnet or HTTP(S), and the asynchronous event stream
// of FHEM's telnet inform mode.
//
// # Architecture
//
// Two independent entry points share one transport layer:
//
//	┌─────────────────────┐      ┌─────────────────────┐
//	│       Client        │      │     EventQueue      │
//	│   (request/reply)   │      │  (inform listener)  │
//	└──────────┬──────────┘      └──────────┬──────────┘
//	           │                            │
//	      Exec / Send                 receive loop
//	           │                            │
//	┌──────────┴──────────┐      ┌──────────┴──────────┐
//	│   transport.Telnet  │      │   transport.Telnet  │
//	│   transport.HTTP    │      │     (dedicated)     │
//	└──────────┬──────────┘      └──────────┬──────────┘
//	           │                            │
//	           └─────── FHEM server ────────┘
//	               telnet :7072
//	               HTTP(S) :8083 (FHEMWEB, CSRF)
//
// The Client multiplexes commands over a single connection and
// reconnects lazily. The EventQueue owns a second, dedicated telnet
// connection: FHEM's inform mode turns a connection into a one-way
// event feed, so sharing it with request/reply traffic would
// interleave replies and events.
//
// # Packages
//
// Client surface:
//   - gofhem: Client, EventQueue, Config, query options
//
// Protocol and data handling:
//   - transport: telnet and HTTP transports, CSRF handling, TLS
//   - reading: jsonlist2 device model, value coercion
//   - event: inform line grammar, event filters
//
// Infrastructure:
//   - errors: structured error handling with failure classes
//   - metric: Prometheus metrics and exposition server
//   - pkg/queue: unbounded FIFO with close-then-drain semantics
//   - pkg/fhemtime: FHEM's timestamp layout
//
// # Usage Patterns
//
// Query device readings:
//
//	cfg := gofhem.Config{Server: "fhem.local"}
//	client, err := gofhem.NewClient(cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	states, err := client.GetStates(ctx, gofhem.WithRoom("livingroom"))
//	temp, err := client.GetDeviceReading(ctx, "thermo1", "temperature")
//
// Send commands:
//
//	err = client.SendCmd(ctx, "set lamp1 on")
//
// Consume the event stream:
//
//	filters, err := event.NewFilterList(event.Filter{
//	    "device":  "lamp[0-9]+",
//	    "reading": "state",
//	})
//	queue, err := gofhem.NewEventQueue(cfg, gofhem.WithFilters(filters))
//	if err := queue.Start(ctx); err != nil {
//	    return err
//	}
//	defer queue.Close()
//
//	for {
//	    ev, err := queue.Next(ctx)
//	    if err != nil {
//	        break // queue closed and drained, or ctx done
//	    }
//	    fmt.Println(ev.Device, ev.Reading, ev.Value, ev.Unit)
//	}
//
// The queue is single-use. When the stream dies, Done closes, buffered
// events stay readable, and Err reports what happened. The caller
// decides whether to build a replacement queue.
//
// # Value Coercion
//
// FHEM serializes every reading as a string. Both the jsonlist2 parser
// and the event parser coerce values that look numeric into numbers
// and leave everything else a string, so "21.5" compares as a number
// while "1.2.3" and "12:30" survive untouched. Raw mode (GetRaw,
// WithRawValues) bypasses coercion entirely.
//
// # Error Handling
//
// All errors carry a failure class (see the errors package): Fatal for
// failed connection attempts, Transient for lost established
// connections, Invalid for bad input or configuration. A silent server
// on the synchronous path is not an error; operations return an empty
// result and single-record getters return errors.ErrNoResult.
//
// # Metrics
//
// Metrics are opt-in. Without WithClientMetrics or WithMetrics the
// client runs metric-free at zero cost; with a registry, transport,
// queue and pipeline counters feed a Prometheus endpoint served by
// metric.Server.
//
// # Binary
//
// cmd/fhem-bridge forwards the FHEM event stream to NATS and MQTT:
//
//	fhem-bridge --config bridge.yaml
//
// It demonstrates the intended composition: one EventQueue, a consumer
// loop, and publisher fan-out with per-sink metrics.
package gofhem
