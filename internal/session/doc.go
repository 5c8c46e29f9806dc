// Package session runs the request/response loop of one client connection.
//
// A session starts unauthenticated and only accepts REGISTER and LOGIN until
// a LOGIN succeeds. Requests are handled strictly one at a time: the full
// response is flushed before the next request is read. Decoding errors end
// the session; every other failure becomes an ERROR response.
package session
