// Package chain connects the detector to an EVM node: it decodes governor
// and token logs into typed events, reads voting power checkpoints with
// eth_call, and fetches logs by block range.
package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// GovernorBravo events.
const governorABI = `[
  {"anonymous":false,"type":"event","name":"ProposalCreated","inputs":[
    {"indexed":false,"name":"id","type":"uint256"},
    {"indexed":false,"name":"proposer","type":"address"},
    {"indexed":false,"name":"targets","type":"address[]"},
    {"indexed":false,"name":"values","type":"uint256[]"},
    {"indexed":false,"name":"signatures","type":"string[]"},
    {"indexed":false,"name":"calldatas","type":"bytes[]"},
    {"indexed":false,"name":"startBlock","type":"uint256"},
    {"indexed":false,"name":"endBlock","type":"uint256"},
    {"indexed":false,"name":"description","type":"string"}]},
  {"anonymous":false,"type":"event","name":"VoteCast","inputs":[
    {"indexed":true,"name":"voter","type":"address"},
    {"indexed":false,"name":"proposalId","type":"uint256"},
    {"indexed":false,"name":"support","type":"uint8"},
    {"indexed":false,"name":"votes","type":"uint256"},
    {"indexed":false,"name":"reason","type":"string"}]}
]`

// Governance token events and checkpoint getters.
const tokenABI = `[
  {"anonymous":false,"type":"event","name":"DelegateVotesChanged","inputs":[
    {"indexed":true,"name":"delegate","type":"address"},
    {"indexed":false,"name":"previousBalance","type":"uint256"},
    {"indexed":false,"name":"newBalance","type":"uint256"}]},
  {"constant":true,"type":"function","name":"numCheckpoints","stateMutability":"view",
   "inputs":[{"name":"","type":"address"}],
   "outputs":[{"name":"","type":"uint32"}]},
  {"constant":true,"type":"function","name":"checkpoints","stateMutability":"view",
   "inputs":[{"name":"","type":"address"},{"name":"","type":"uint32"}],
   "outputs":[{"name":"fromBlock","type":"uint32"},{"name":"votes","type":"uint96"}]}
]`

var (
	GovernorABI = mustParse(governorABI)
	TokenABI    = mustParse(tokenABI)
)

func mustParse(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return a
}
