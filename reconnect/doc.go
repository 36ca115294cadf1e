// Package reconnect keeps a broker connection alive.
//
// Connect starts a Supervisor that dials the broker in a backoff loop and
// hands every outcome to a callback: (nil, err) for each failed attempt and
// (conn, nil) once an attempt succeeds. The callback therefore runs once
// per attempt, not once per Connect.
//
// When a live connection closes without the caller asking for it, the
// supervisor dials again and calls the callback with the new Connection.
// Callers re-create their channels, consumers and topology there.
//
//	sup := reconnect.Connect(url, func(conn *reconnect.Connection, err error) {
//	    if err != nil {
//	        return // logged and retried
//	    }
//	    ch, err := conn.ConfirmChannel()
//	    if err != nil {
//	        return // the connection is being replaced
//	    }
//	    go publish(ch)
//	}, reconnect.WithClassifier(classify.Fatal()))
//	defer sup.Stop()
//
// # Closing
//
// Connection.Close is a deliberate close: no reconnect follows.
// Connection.CloseAndReconnect closes the current connection and dials a
// new one, which is how credentials are rotated. Channel.Close closes only
// the channel; a channel closed by the broker takes its connection down so
// that everything is rebuilt on a fresh connection.
//
// # Giving up
//
// Retries are unbounded by default. A Classifier decides which errors are
// unrecoverable; see package classify.
package reconnect
