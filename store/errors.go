package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/cppla/heistctf/apperr"
)

// MySQL server error numbers that mean "could not get the row lock".
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlLockNoWait      = 3572
)

// classify maps driver and ORM failures onto the apperr kinds. Errors that
// already carry a kind pass through unchanged.
func classify(err error) error {
	if err == nil || apperr.Expected(err) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", apperr.ErrNotFound, err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlLockWaitTimeout, mysqlDeadlock, mysqlLockNoWait:
			return fmt.Errorf("%w: %v", apperr.ErrConcurrencyConflict, err)
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperr.ErrTransientStore, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", apperr.ErrTransientStore, err)
	}
	return err
}
