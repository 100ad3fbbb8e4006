package network

import (
	"context"
	"strconv"

	"github.com/xaitan80/iopnet/internal/neterr"
	"github.com/xaitan80/iopnet/internal/netstatus"
)

// UpdateStatus is the outcome of an update fetch.
type UpdateStatus int

const (
	UpdateIoError UpdateStatus = iota
	UpdateBrokenServer
	UpdateBrokenClient
	NoUpgrade
	UpdateUnauthorized
	// UpdateReady means a binary was downloaded.
	UpdateReady
)

const statusNotModified = 304

func (s UpdateStatus) String() string {
	switch s {
	case UpdateIoError:
		return "io-error"
	case UpdateBrokenServer:
		return "broken-server"
	case UpdateBrokenClient:
		return "broken-client"
	case NoUpgrade:
		return "no-upgrade"
	case UpdateUnauthorized:
		return "unauthorized"
	case UpdateReady:
		return "ready"
	default:
		return "update-status(" + strconv.Itoa(int(s)) + ")"
	}
}

// FetchUpdate downloads the firmware behind path. The binary is only set with
// UpdateReady; installing it is up to the caller.
func (n *Network) FetchUpdate(ctx context.Context, path, token string) ([]byte, UpdateStatus) {
	f, err := n.HTTPGet(ctx, path, token, []byte{})
	if err != nil {
		kind, _ := neterr.KindOf(err)
		n.log.Error().Err(err).Msg("update failed")
		switch kind {
		case neterr.BrokenServer:
			return nil, UpdateBrokenServer
		case neterr.BrokenClient:
			return nil, UpdateBrokenClient
		default:
			return nil, UpdateIoError
		}
	}

	switch {
	case f.Is(netstatus.Ok):
		if len(f.Body()) == 0 {
			n.log.Error().Msg("update failed, no firmware returned")
			return nil, UpdateBrokenServer
		}
		n.log.Info().Int("size", len(f.Body())).Msg("firmware downloaded")
		return f.Body(), UpdateReady
	case f.Code() == statusNotModified:
		return nil, NoUpgrade
	case f.Is(netstatus.Unauthorized), f.Is(netstatus.Forbidden):
		return nil, UpdateUnauthorized
	}
	n.log.Error().Str("code", n.CodeToString(f.Code())).Msg("invalid status returned by the server on update")
	return nil, UpdateBrokenServer
}
