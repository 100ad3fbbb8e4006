//go:build !unix

package channel

func temporary(error) bool { return false }

func peerClosed(error) bool { return false }

func refused(error) bool { return false }
