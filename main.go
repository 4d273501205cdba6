// keystore manages secp256k1 private keys encrypted under user passwords.
//
// Keys can be used from the command line, or served over gRPC to other local
// processes with 'keystore serve'.
package main

import (
	"github.com/ava-labs/keystore-cli/cmd"
)

func main() {
	cmd.Execute()
}
