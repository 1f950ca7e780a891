package accounts

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"time"

	"github.com/tokenledger/chain/pkg/address"
	"github.com/tokenledger/chain/pkg/codeerr"
)

// ExecuteFn runs the decoded inner envelope as if account itself had sent
// it. The accounts package never dispatches endpoints itself — doing so
// would need to import every module it can call into, and those modules
// already import accounts for authorization, so the caller (the endpoint
// dispatcher) injects this callback instead of accounts depending upward.
type ExecuteFn func(account address.Address, innerEnvelope []byte) error

// mintToken derives the multisig transaction's opaque, content-addressed
// token from (account, submitter, submit-time, counter). counter is
// supplied by the caller (the bridge's per-block deliver index) so two
// submissions in the same second by the same submitter on the same
// account never collide.
func mintToken(account, submitter address.Address, submitTime time.Time, counter uint64) []byte {
	h := sha256.New()
	h.Write(account.Raw())
	h.Write(submitter.Raw())
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], uint64(submitTime.Unix()))
	h.Write(tb[:])
	var cb [8]byte
	binary.BigEndian.PutUint64(cb[:], counter)
	h.Write(cb[:])
	return h.Sum(nil)
}

// SubmitArgs is the payload of account.multisigSubmitTransaction.
type SubmitArgs struct {
	Account              address.Address
	InnerEnvelope        []byte
	Memo                 string
	DataHash             []byte
	ThresholdOverride    *uint32
	ExpireInOverride     *uint64
	ExecuteAutoOverride  *bool
}

// SubmitTransaction stores the inner request under a freshly minted token,
// records the submitter as first approver, and snapshots defaults (or
// overrides, which require owner). If execute-automatically is set and the
// threshold is already met (threshold == 1), it executes immediately.
func (m *Module) SubmitTransaction(sender address.Address, args SubmitArgs, now time.Time, counter uint64, exec ExecuteFn) ([]byte, error) {
	acc, ok, err := m.store.Account(args.Account)
	if err != nil {
		return nil, err
	}
	if !ok || acc.Disabled || !acc.HasFeature(FeatureMultisig) {
		return nil, codeerr.UnknownAccount(args.Account.String())
	}
	if !acc.HasRole(sender, RoleCanMultisigSubmit) && !acc.HasRole(sender, RoleOwner) {
		return nil, codeerr.MissingPermission(string(RoleCanMultisigSubmit))
	}

	threshold, expireIn, autoExec := acc.Multisig.Threshold, acc.Multisig.ExpireInSeconds, acc.Multisig.ExecuteAutomatically
	overridden := args.ThresholdOverride != nil || args.ExpireInOverride != nil || args.ExecuteAutoOverride != nil
	if overridden && !acc.HasRole(sender, RoleOwner) {
		return nil, codeerr.MissingPermission(string(RoleOwner))
	}
	if args.ThresholdOverride != nil {
		threshold = *args.ThresholdOverride
	}
	if args.ExpireInOverride != nil {
		expireIn = *args.ExpireInOverride
	}
	if args.ExecuteAutoOverride != nil {
		autoExec = *args.ExecuteAutoOverride
	}
	if threshold == 0 {
		threshold = 1
	}

	token := mintToken(args.Account, sender, now, counter)
	tx := MultisigTx{
		Token: token, Submitter: sender, Account: args.Account,
		InnerEnvelope: args.InnerEnvelope, Threshold: threshold,
		Approvers:  []ApproverEntry{{Holder: sender, State: Approved}},
		State:      TxPending,
		SubmitTime: now,
		ExpireTime: now.Add(time.Duration(expireIn) * time.Second),
		Memo:       args.Memo, DataHash: args.DataHash,
		ExecuteAutomatically: autoExec,
	}
	if err := m.store.PutMultisigTx(tx); err != nil {
		return nil, err
	}

	if autoExec && tx.ApprovalCount() >= int(threshold) {
		if err := m.runExecute(&tx, exec); err != nil {
			return token, err
		}
	}
	return token, nil
}

func (m *Module) loadPending(token []byte) (MultisigTx, error) {
	tx, ok, err := m.store.MultisigTx(token)
	if err != nil {
		return MultisigTx{}, err
	}
	if !ok {
		return MultisigTx{}, codeerr.TransactionNotFound(string(token))
	}
	return tx, nil
}

// Approve adds sender to tx's approver set; if execute-automatically and
// the threshold is now met, triggers execute.
func (m *Module) Approve(sender address.Address, token []byte, exec ExecuteFn) error {
	tx, err := m.loadPending(token)
	if err != nil {
		return err
	}
	if tx.State != TxPending {
		return codeerr.TransactionNotFound(string(token))
	}
	replaced := false
	for i := range tx.Approvers {
		if tx.Approvers[i].Holder.Equal(sender) {
			tx.Approvers[i].State = Approved
			replaced = true
			break
		}
	}
	if !replaced {
		tx.Approvers = append(tx.Approvers, ApproverEntry{Holder: sender, State: Approved})
	}
	if err := m.store.PutMultisigTx(tx); err != nil {
		return err
	}
	if tx.ExecuteAutomatically && tx.ApprovalCount() >= int(tx.Threshold) {
		return m.runExecute(&tx, exec)
	}
	return nil
}

// Revoke flips sender's approval to revoked; the transaction stays
// pending regardless of whether sender was the submitter — a submitter
// who revokes merely de-approves their own submission and can re-approve
// later (spec §8 scenario 3). Ending a transaction outright, including by
// its submitter, is Withdraw's job, not Revoke's.
func (m *Module) Revoke(sender address.Address, token []byte) error {
	tx, err := m.loadPending(token)
	if err != nil {
		return err
	}
	if tx.State != TxPending {
		return codeerr.TransactionNotFound(string(token))
	}
	for i := range tx.Approvers {
		if tx.Approvers[i].Holder.Equal(sender) {
			tx.Approvers[i].State = Revoked
		}
	}
	return m.store.PutMultisigTx(tx)
}

// Execute runs the inner request once approvals reach the threshold.
func (m *Module) Execute(token []byte, exec ExecuteFn) error {
	tx, err := m.loadPending(token)
	if err != nil {
		return err
	}
	if tx.State != TxPending {
		return codeerr.TransactionNotFound(string(token))
	}
	if tx.ApprovalCount() < int(tx.Threshold) {
		return codeerr.CannotExecuteYet()
	}
	return m.runExecute(&tx, exec)
}

func (m *Module) runExecute(tx *MultisigTx, exec ExecuteFn) error {
	if err := exec(tx.Account, tx.InnerEnvelope); err != nil {
		return err
	}
	tx.State = TxExecuted
	return m.store.PutMultisigTx(*tx)
}

// Withdraw transitions tx to withdrawn; only the submitter or the account
// owner may call it.
func (m *Module) Withdraw(sender address.Address, token []byte) error {
	tx, err := m.loadPending(token)
	if err != nil {
		return err
	}
	if tx.State != TxPending {
		return codeerr.TransactionNotFound(string(token))
	}
	acc, ok, err := m.store.Account(tx.Account)
	if err != nil {
		return err
	}
	if !tx.Submitter.Equal(sender) && (!ok || !acc.HasRole(sender, RoleOwner)) {
		return codeerr.Unauthorized()
	}
	tx.State = TxWithdrawn
	return m.store.PutMultisigTx(tx)
}

// SetDefaults updates an account's multisig defaults; owner only.
func (m *Module) SetDefaults(sender, account address.Address, threshold *uint32, expireIn *uint64, executeAuto *bool) error {
	acc, err := m.requireOwner(sender, account)
	if err != nil {
		return err
	}
	if threshold != nil {
		acc.Multisig.Threshold = *threshold
	}
	if expireIn != nil {
		acc.Multisig.ExpireInSeconds = *expireIn
	}
	if executeAuto != nil {
		acc.Multisig.ExecuteAutomatically = *executeAuto
	}
	return m.store.PutAccount(acc)
}

// SweepExpired marks every pending transaction whose expiry has passed as
// expired, comparing against blockTime (never wall-clock, per spec §4.8's
// determinism rules). Called once per begin-block.
func (m *Module) SweepExpired(blockTime time.Time) (int, error) {
	txs, err := m.store.AllMultisigTxs()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, tx := range txs {
		if tx.State != TxPending {
			continue
		}
		if blockTime.Before(tx.ExpireTime) {
			continue
		}
		tx.State = TxExpired
		if err := m.store.PutMultisigTx(tx); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// PruneTerminalHistory bounds each account's terminal (executed, withdrawn,
// or expired) multisig transaction records to the keep most recent by
// submit time, deleting the rest. Generalizes the teacher's height-based
// validatorBlocks cache eviction (maxCachedBlocks) to a count-based window
// over terminal multisig records, since multisig transactions carry no
// block height of their own. Pending transactions are never pruned. Called
// once per begin-block alongside SweepExpired.
func (m *Module) PruneTerminalHistory(keep int) (int, error) {
	txs, err := m.store.AllMultisigTxs()
	if err != nil {
		return 0, err
	}
	byAccount := map[string][]MultisigTx{}
	for _, tx := range txs {
		if tx.State == TxPending {
			continue
		}
		key := tx.Account.String()
		byAccount[key] = append(byAccount[key], tx)
	}

	pruned := 0
	for _, terminal := range byAccount {
		if len(terminal) <= keep {
			continue
		}
		sort.Slice(terminal, func(i, j int) bool {
			return terminal[i].SubmitTime.After(terminal[j].SubmitTime)
		})
		for _, tx := range terminal[keep:] {
			m.store.DeleteMultisigTx(tx.Token)
			pruned++
		}
	}
	return pruned, nil
}
