// Package testutil provides scripted fakes for testing code that talks
// to a FHEM server, with no live server or socket required.
//
// MockTransport implements transport.Streamer. Command tests script
// Exec responses and inspect the recorded calls:
//
//	mock := &testutil.MockTransport{Response: []byte(payload)}
//	client, _ := gofhem.NewClient(cfg, gofhem.WithTransport(mock))
//	// ... exercise the client ...
//	assert.Equal(t, []string{"jsonlist2 NAME~lamp1"}, mock.Commands())
//
// Stream tests feed chunks and let the listener consume them:
//
//	mock := &testutil.MockTransport{}
//	mock.Feed("2023-01-15 12:30:45 dummy lamp1 on\n")
//	queue, _ := gofhem.NewEventQueue(cfg, gofhem.WithEventTransport(mock))
//
// Error queues (ConnectErrs, SendErrs, ExecErrs) pop one entry per
// call, so transient-then-healthy sequences need no custom stubs.
package testutil
