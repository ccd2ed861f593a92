package boltstore

import (
	"github.com/btcsuite/btclog"
	"github.com/hoprnet/hopr-chain-core/corelog"
)

var log = corelog.Disabled

func UseLogger(logger btclog.Logger) {
	log = logger
}

func init() {
	corelog.RegisterSubsystem("STOR", UseLogger)
}
