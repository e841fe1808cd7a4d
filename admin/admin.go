// Package admin keeps the set of operations reserved to the admin identity.
package admin

import (
	"context"
	"sort"

	mapset "github.com/deckarep/golang-set"
	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

var (
	ErrProxyError    = types.NewFailure(types.ErrStateConflict, "ProxyError")
	errEmptyList     = types.NewFailure(types.ErrValidation, "ProxyError")
	ErrNotAuthorized = types.NewFailure(types.ErrAuthorization, "NotAuthorized")
)

const (
	msgAlreadySet = "Admin function already set"
	msgEmptyList  = "Admin functions: Empty list"
)

const functionPrefix = "admin/fn"

var adminKey = []byte("admin/address")

func functionKey(op string) []byte {
	return db.Key(functionPrefix, op)
}

func IsAdminFunction(r db.Reader, op string) (bool, error) {
	return r.Has(functionKey(op))
}

// Functions lists the declared operations in lexical order.
func Functions(r db.Reader) ([]string, error) {
	ops := []string{}
	prefix := functionPrefix + "/"
	err := r.Iterate([]byte(prefix), nil, func(key []byte, _ func(v any) error) error {
		ops = append(ops, string(key[len(prefix):]))
		return nil
	})
	return ops, err
}

// Admin returns the admin identity, zero when none was set.
func Admin(r db.Reader) (types.Address, error) {
	var admin types.Address
	_, err := db.Lookup(r, adminKey, &admin)
	return admin, err
}

func SetAdmin(tx *db.Tx, admin types.Address) error {
	previous, err := Admin(tx)
	if err != nil {
		return err
	}
	if err := tx.Put(adminKey, admin); err != nil {
		return err
	}
	tx.Emit(events.AdminUpdated{Previous: previous, New: admin})
	return nil
}

// Authorize fails unless op is open to everyone or caller is the admin.
func Authorize(r db.Reader, op string, caller types.Address) error {
	gated, err := IsAdminFunction(r, op)
	if err != nil || !gated {
		return err
	}
	admin, err := Admin(r)
	if err != nil {
		return err
	}
	if admin.IsZero() || caller != admin {
		return ErrNotAuthorized.With("Admin", caller)
	}
	return nil
}

func DeclareSingle(tx *db.Tx, op string) error {
	if err := declare(tx, op); err != nil {
		return err
	}
	tx.Emit(events.AdminFunctionDeclared{Selector: op, Time: tx.Now().Unix()})
	logChange(tx, "admin functions declared", op)
	return nil
}

func DeclareBatch(tx *db.Tx, ops []string) error {
	if err := checkBatch(ops); err != nil {
		return err
	}
	for _, op := range ops {
		if err := declare(tx, op); err != nil {
			return err
		}
	}
	tx.Emit(events.AdminFunctionsDeclared{Selectors: append([]string{}, ops...), Time: tx.Now().Unix()})
	logChange(tx, "admin functions declared", ops...)
	return nil
}

func RemoveSingle(tx *db.Tx, op string) error {
	if err := discard(tx, op); err != nil {
		return err
	}
	tx.Emit(events.AdminFunctionDiscarded{Selector: op, Time: tx.Now().Unix()})
	logChange(tx, "admin functions discarded", op)
	return nil
}

func RemoveBatch(tx *db.Tx, ops []string) error {
	if len(ops) == 0 {
		return errEmptyList.With(msgEmptyList)
	}
	for _, op := range ops {
		if err := discard(tx, op); err != nil {
			return err
		}
	}
	tx.Emit(events.AdminFunctionsDiscarded{Selectors: append([]string{}, ops...), Time: tx.Now().Unix()})
	logChange(tx, "admin functions discarded", ops...)
	return nil
}

// checkBatch rejects empty batches and batches naming an operation twice.
func checkBatch(ops []string) error {
	if len(ops) == 0 {
		return errEmptyList.With(msgEmptyList)
	}
	seen := mapset.NewThreadUnsafeSet()
	for _, op := range ops {
		if !seen.Add(op) {
			return ErrProxyError.With(msgAlreadySet)
		}
	}
	return nil
}

func declare(tx *db.Tx, op string) error {
	ok, err := IsAdminFunction(tx, op)
	if err != nil {
		return err
	}
	if ok {
		return ErrProxyError.With(msgAlreadySet)
	}
	return tx.Put(functionKey(op), true)
}

func discard(tx *db.Tx, op string) error {
	ok, err := IsAdminFunction(tx, op)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProxyError.With(msgAlreadySet)
	}
	return tx.Delete(functionKey(op))
}

func logChange(tx *db.Tx, msg string, ops ...string) {
	ops = append([]string{}, ops...)
	sort.Strings(ops)
	tx.OnCommit(func(ctx context.Context) {
		logging.FromContext(ctx).Info(msg, zap.Strings("operations", ops))
	})
}
