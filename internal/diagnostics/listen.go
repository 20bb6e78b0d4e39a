package diagnostics

import "net"

// httpListen uses the standard net package deliberately: the
// diagnostics server runs on its own goroutine outside the custom
// epoll/kqueue event loop, so there is no risk of double-registering
// its fd with the reactor.
func httpListen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
