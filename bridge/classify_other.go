//go:build !unix

package bridge

func classifyErrno(error) (Kind, bool) { return KindNone, false }
