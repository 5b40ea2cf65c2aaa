package store

import (
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrFatal marca uma falha de storage que não deve ser retentada (violação
// de constraint, schema ausente). Qualquer outro erro, inclusive falha de
// autenticação, é classificado como ErrTransient.
var ErrFatal = errors.New("tick store: fatal error")

// ErrTransient marca uma falha de storage elegível para retry (deadlock,
// conexão perdida, pool esgotado), até o limite de tentativas do chamador.
var ErrTransient = errors.New("tick store: transient error")

// ErrValidation marca um valor que viola uma invariante do domínio antes de
// qualquer tentativa de escrita (preço não positivo, possession_pct fora de
// faixa).
var ErrValidation = errors.New("tick store: validation error")

// classify decide se err deve ser tratado como fatal ou transiente,
// inspecionando o código de erro do Postgres quando disponível.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503", "23502", "42P01", "42703":
			// unique_violation, foreign_key_violation, not_null_violation,
			// undefined_table, undefined_column: erros de schema/integridade,
			// não se resolvem com retry.
			return errors.Wrapf(ErrFatal, "%s: %s", pgErr.Code, pgErr.Message)
		}
	}
	return errors.Wrapf(ErrTransient, "%v", err)
}

// classifyIs reporta se err (já classificado) corresponde a target.
func classifyIs(err, target error) bool {
	return errors.Is(err, target)
}
