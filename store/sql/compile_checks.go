package sqlstore

import (
	"github.com/goliatone/go-tenantquery/auth"
	"github.com/goliatone/go-tenantquery/core"
)

type compileCheckModel struct{}

var (
	_ auth.RevocationChecker = (*RevocationStore)(nil)
	_ auth.RevocationChecker = (*CachedRevocationStore)(nil)
	_ Revoker                = (*RevocationStore)(nil)
	_ Revoker                = (*CachedRevocationStore)(nil)

	_ core.EntityReader[*compileCheckModel] = (*Collection[*compileCheckModel])(nil)
	_ core.Mapper                           = PostgresErrorMapper
	_ core.Mapper                           = SQLiteErrorMapper
	_ core.Mapper                           = MySQLErrorMapper
)
