package repository

import (
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"

	"github.com/Postroom/postroom/internal/domain"
)

// mapStoreError converts driver-level failures into the typed domain errors
// callers branch on: duplicate key, foreign key violation, connection loss.
// Anything else passes through unchanged.
func mapStoreError(entity string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return &domain.ErrDuplicate{Entity: entity, Detail: pqErr.Detail}
		case "23503":
			return &domain.ErrForeignKey{Entity: entity, Detail: pqErr.Detail}
		}
		// Class 08 is a server-reported connection exception.
		if pqErr.Code.Class() == "08" {
			return &domain.ErrConnection{Err: err}
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return &domain.ErrConnection{Err: err}
	}
	return err
}
