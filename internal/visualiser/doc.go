// Package visualiser streams consistency results to remote viewers over
// gRPC. Each result is sent as a google.protobuf.Struct on the server
// stream /lostnav.Visualiser/StreamResults, so clients need no generated
// stubs beyond the well-known types.
package visualiser
