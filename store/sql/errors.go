package sqlstore

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	postgresKeyDetail = regexp.MustCompile(`Key \(([^)]+)\)=`)
	mysqlDuplicateKey = regexp.MustCompile(`for key '([^']+)'`)
	mysqlColumnName   = regexp.MustCompile(`Column '([^']+)'`)
	sqliteNotNull     = regexp.MustCompile(`NOT NULL constraint failed: (\S+)`)
)

// Families returns normalizer options registering every SQL driver family.
func Families() []core.NormalizerOption {
	return []core.NormalizerOption{
		core.WithFamily(core.FamilyPostgres, PostgresErrorMapper),
		core.WithFamily(core.FamilySQLite, SQLiteErrorMapper),
		core.WithFamily(core.FamilyMySQL, MySQLErrorMapper),
	}
}

// NewNormalizer returns a normalizer with the SQL families registered.
func NewNormalizer(opts ...core.NormalizerOption) *core.ErrorNormalizer {
	return core.NewErrorNormalizer(append(Families(), opts...)...)
}

func PostgresErrorMapper(err error) (*core.ApplicationError, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil, false
	}
	code := string(pqErr.Code)
	switch code {
	case "23505":
		return core.NewUniqueViolation(postgresColumns(pqErr), err), true
	case "23503":
		return core.NewForeignKeyViolation(postgresReference(pqErr), err), true
	case "23502":
		return core.NewNotNullViolation(pqErr.Column, err), true
	case "57P01", "57P03", "53300", "57014", "40001", "40P01":
		return core.NewDatastoreUnavailable(err), true
	case "42P01", "42703":
		return core.NewSchemaMismatch(code, err), true
	}
	switch string(pqErr.Code.Class()) {
	case "08":
		return core.NewDatastoreUnavailable(err), true
	case "22":
		return core.NewError(core.KindBadRequest, core.CodeBadRequest, "Invalid value").WithCause(err), true
	}
	return core.NewUnrecognizedDatastoreError(code, err), true
}

func SQLiteErrorMapper(err error) (*core.ApplicationError, bool) {
	var liteErr sqlite3.Error
	if !errors.As(err, &liteErr) {
		var liteErrPtr *sqlite3.Error
		if !errors.As(err, &liteErrPtr) || liteErrPtr == nil {
			return nil, false
		}
		liteErr = *liteErrPtr
	}
	message := liteErr.Error()
	switch liteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return core.NewUniqueViolation(sqliteColumns(message, "UNIQUE constraint failed:"), err), true
	case sqlite3.ErrConstraintForeignKey:
		return core.NewForeignKeyViolation("", err), true
	case sqlite3.ErrConstraintNotNull:
		column := ""
		if match := sqliteNotNull.FindStringSubmatch(message); len(match) == 2 {
			column = stripTable(match[1])
		}
		return core.NewNotNullViolation(column, err), true
	}
	switch liteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen:
		return core.NewDatastoreUnavailable(err), true
	}
	lower := strings.ToLower(message)
	if strings.Contains(lower, "no such table") || strings.Contains(lower, "no such column") {
		return core.NewSchemaMismatch(strconv.Itoa(int(liteErr.ExtendedCode)), err), true
	}
	return core.NewUnrecognizedDatastoreError(strconv.Itoa(int(liteErr.ExtendedCode)), err), true
}

func MySQLErrorMapper(err error) (*core.ApplicationError, bool) {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return core.NewDatastoreUnavailable(err), true
	}
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return nil, false
	}
	code := strconv.Itoa(int(myErr.Number))
	switch myErr.Number {
	case 1062:
		var columns []string
		if match := mysqlDuplicateKey.FindStringSubmatch(myErr.Message); len(match) == 2 {
			columns = []string{stripTable(match[1])}
		}
		return core.NewUniqueViolation(columns, err), true
	case 1451, 1452:
		return core.NewForeignKeyViolation("", err), true
	case 1048:
		column := ""
		if match := mysqlColumnName.FindStringSubmatch(myErr.Message); len(match) == 2 {
			column = match[1]
		}
		return core.NewNotNullViolation(column, err), true
	case 1146, 1054:
		return core.NewSchemaMismatch(code, err), true
	case 1205, 1213, 1040:
		return core.NewDatastoreUnavailable(err), true
	}
	return core.NewUnrecognizedDatastoreError(code, err), true
}

func postgresColumns(pqErr *pq.Error) []string {
	if match := postgresKeyDetail.FindStringSubmatch(pqErr.Detail); len(match) == 2 {
		return strings.Split(match[1], ",")
	}
	if pqErr.Column != "" {
		return []string{pqErr.Column}
	}
	if pqErr.Constraint != "" {
		return []string{pqErr.Constraint}
	}
	return nil
}

func postgresReference(pqErr *pq.Error) string {
	if match := postgresKeyDetail.FindStringSubmatch(pqErr.Detail); len(match) == 2 {
		return strings.ReplaceAll(match[1], " ", "")
	}
	return pqErr.Constraint
}

// sqliteColumns parses "UNIQUE constraint failed: users.email, users.tenant_id".
func sqliteColumns(message string, marker string) []string {
	_, rest, ok := strings.Cut(message, marker)
	if !ok {
		return nil
	}
	parts := strings.Split(rest, ",")
	columns := make([]string, 0, len(parts))
	for _, part := range parts {
		if column := stripTable(part); column != "" {
			columns = append(columns, column)
		}
	}
	return columns
}

func stripTable(qualified string) string {
	qualified = strings.TrimSpace(qualified)
	if idx := strings.LastIndex(qualified, "."); idx >= 0 {
		return qualified[idx+1:]
	}
	return qualified
}
