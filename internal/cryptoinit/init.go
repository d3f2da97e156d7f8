// Package cryptoinit wires the default cryptographic providers into the
// process-wide registry at program start, before any engine begins handling
// messages. Importing this package for its side effect is the production
// equivalent of the providers.RegisterDefaults() call tests make directly.
package cryptoinit

import (
	"github.com/openspdm/spdm-go/crypto/providers"
)

func init() {
	providers.RegisterDefaults()
}
