package rpc

// ResolveAddrForTest exposes resolveAddr to the external test package.
func ResolveAddrForTest(addr, serviceName string) string { return resolveAddr(addr, serviceName) }

// RetryableForTest exposes retryable to the external test package.
func RetryableForTest(err error) bool { return retryable(err) }
