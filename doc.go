// Package authclient keeps the authentication state of a client talking to a
// token protected backend.
//
// Session state:
//   - Store holds the bearer token and the user record for the running client.
//     The token is mirrored to a storage.Storage driver so it survives restarts,
//     the user record is always fetched again from the server.
//   - Login, Logout and Init never return errors. Failures are logged, reported
//     to the ActivitySink and turned into a state transition (Init, Logout) or a
//     false result (Login).
//   - Init is single-flight per token, concurrent callers share one request.
//
// Outgoing requests:
//   - Store.Transport wraps any http.RoundTripper so requests carry the
//     X-Requested-With marker, a request id and the current bearer token. The
//     token is read from the store on every request, there is no shared default
//     header to mutate.
//
// Navigation guards live in the navigation package and consult a Store before
// each route change.
package authclient
