package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Keys the runtime never lets a transaction write, even when the message
// header marks them writable.
var (
	NativeLoaderProgramID    = solana.MustPublicKeyFromBase58("NativeLoader1111111111111111111111111111111")
	Ed25519ProgramID         = solana.MustPublicKeyFromBase58("Ed25519SigVerify111111111111111111111111111")
	SysvarOwnerID            = solana.MustPublicKeyFromBase58("Sysvar1111111111111111111111111111111111111")
	SysVarEpochRewardsPubkey = solana.MustPublicKeyFromBase58("SysvarEpochRewards1111111111111111111111111")
	SysVarLastRestartPubkey  = solana.MustPublicKeyFromBase58("SysvarLastRestartS1ot1111111111111111111111")
)

var reservedKeys = map[solana.PublicKey]struct{}{
	solana.SystemProgramID:               {},
	solana.VoteProgramID:                 {},
	solana.StakeProgramID:                {},
	solana.ConfigProgramID:               {},
	solana.BPFLoaderDeprecatedProgramID:  {},
	solana.BPFLoaderProgramID:            {},
	solana.BPFLoaderUpgradeableProgramID: {},
	solana.Secp256k1ProgramID:            {},
	solana.FeatureProgramID:              {},
	solana.ComputeBudget:                 {},
	solana.AddressLookupTableProgramID:   {},
	NativeLoaderProgramID:                {},
	Ed25519ProgramID:                     {},
	SysvarOwnerID:                        {},
	solana.SysVarClockPubkey:             {},
	solana.SysVarEpochSchedulePubkey:     {},
	solana.SysVarFeesPubkey:              {},
	solana.SysVarInstructionsPubkey:      {},
	solana.SysVarRecentBlockHashesPubkey: {},
	solana.SysVarRentPubkey:              {},
	solana.SysVarRewardsPubkey:           {},
	solana.SysVarSlotHashesPubkey:        {},
	solana.SysVarSlotHistoryPubkey:       {},
	solana.SysVarStakeHistoryPubkey:      {},
	SysVarEpochRewardsPubkey:             {},
	SysVarLastRestartPubkey:              {},
}

// IsReservedKey reports whether key is a builtin program or sysvar.
func IsReservedKey(key solana.PublicKey) bool {
	_, ok := reservedKeys[key]
	return ok
}

// blockFromResult converts a getBlock response to our domain Block.
// Transactions keep their block position in Index.
func blockFromResult(slot uint64, result *rpc.GetBlockResult) (*Block, error) {
	if result == nil {
		return nil, fmt.Errorf("block %d: empty response", slot)
	}
	if result.Transactions == nil {
		return nil, fmt.Errorf("block %d: response has no transaction list", slot)
	}

	block := &Block{
		Slot:         slot,
		ParentSlot:   result.ParentSlot,
		Blockhash:    result.Blockhash.String(),
		Transactions: make([]*BlockTransaction, 0, len(result.Transactions)),
	}
	if result.BlockTime != nil {
		block.BlockTime = result.BlockTime.Time().UTC()
	}

	for i := range result.Transactions {
		txn, err := parseBlockTransaction(i, &result.Transactions[i])
		if err != nil {
			return nil, fmt.Errorf("block %d: transaction %d: %w", slot, i, err)
		}
		block.Transactions = append(block.Transactions, txn)
	}

	return block, nil
}

// parseBlockTransaction decodes one transaction of a full-detail block.
func parseBlockTransaction(index int, twm *rpc.TransactionWithMeta) (*BlockTransaction, error) {
	if twm.Meta == nil {
		return nil, fmt.Errorf("transaction has no meta")
	}
	if twm.Transaction == nil {
		return nil, fmt.Errorf("transaction has no payload")
	}

	tx, err := twm.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return nil, fmt.Errorf("transaction has no signatures")
	}

	writes, reads := partitionAccounts(&tx.Message)
	writes = append(writes, twm.Meta.LoadedAddresses.Writable...)
	reads = append(reads, twm.Meta.LoadedAddresses.ReadOnly...)

	txn := &BlockTransaction{
		Index:         index,
		Signatures:    make([]string, len(tx.Signatures)),
		Fee:           twm.Meta.Fee,
		WriteAccounts: writes,
		ReadAccounts:  reads,
	}
	for i, sig := range tx.Signatures {
		txn.Signatures[i] = sig.String()
	}
	if twm.Meta.ComputeUnitsConsumed != nil {
		txn.ComputeUnits = *twm.Meta.ComputeUnitsConsumed
	}
	if twm.Meta.Err != nil {
		errMsg := fmt.Sprintf("transaction failed: %v", twm.Meta.Err)
		txn.Err = &errMsg
	}

	return txn, nil
}

// partitionAccounts splits the static account keys of msg into the keys the
// transaction may write and the keys it only reads, in key order.
func partitionAccounts(msg *solana.Message) (writes, reads []solana.PublicKey) {
	keys := msg.AccountKeys
	upgradeableLoaderPresent := keys.Contains(solana.BPFLoaderUpgradeableProgramID)

	invoked := make(map[int]struct{}, len(msg.Instructions))
	for _, ix := range msg.Instructions {
		invoked[int(ix.ProgramIDIndex)] = struct{}{}
	}

	for i, key := range keys {
		writable := isWritableIndex(msg.Header, len(keys), i)
		if writable {
			if _, ok := invoked[i]; ok && !upgradeableLoaderPresent {
				writable = false
			} else if IsReservedKey(key) {
				writable = false
			}
		}

		if writable {
			writes = append(writes, key)
		} else {
			reads = append(reads, key)
		}
	}
	return writes, reads
}

// isWritableIndex applies the message header layout: signed writable keys,
// signed read-only keys, unsigned writable keys, unsigned read-only keys.
func isWritableIndex(h solana.MessageHeader, numKeys, i int) bool {
	numSigned := int(h.NumRequiredSignatures)
	if i < numSigned {
		return i < numSigned-int(h.NumReadonlySignedAccounts)
	}
	return i < numKeys-int(h.NumReadonlyUnsignedAccounts)
}
