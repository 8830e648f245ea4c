// Package postgres provides PostgreSQL storage for companions and sessions.
package postgres

import (
	sq "github.com/Masterminds/squirrel"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const defaultListLimit = 50
