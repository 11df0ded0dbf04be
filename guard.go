package txlog

import (
	"context"
	"fmt"
	"io"
)

// Prober verifies that an exchange credential is safe to use for
// collection: read-only, with no order or withdrawal permissions.
type Prober interface {
	Exchange() Exchange
	// Writable reports whether the credential holds order or withdrawal
	// permissions. The check sends empty requests to dangerous
	// endpoints: a parameter error means the endpoint accepted the
	// credential, an authorization error means the capability is
	// blocked.
	Writable(ctx context.Context) (bool, error)
}

// CheckPermissions probes every credential and writes one line per
// exchange to w. It returns false when any credential holds dangerous
// permissions or could not be verified.
func CheckPermissions(ctx context.Context, w io.Writer, probers ...Prober) bool {
	ok := true
	for _, p := range probers {
		writable, err := p.Writable(ctx)
		switch {
		case err != nil:
			fmt.Fprintf(w, "  %-8s verification failed: %v\n", p.Exchange(), err)
			ok = false
		case writable:
			fmt.Fprintf(w, "  %-8s key holds order/withdraw permissions, issue a read-only key\n", p.Exchange())
			ok = false
		default:
			fmt.Fprintf(w, "  %-8s read-only key verified\n", p.Exchange())
		}
	}
	return ok
}
