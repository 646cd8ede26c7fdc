package source

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// maxDetailIDs caps the ids bound into one details query. SQLite allows
// 32766 host parameters and Postgres 65535.
var maxDetailIDs = 1000

// changedUnion selects (title id, change time) pairs from titles, genres and
// persons whose change time satisfies "modified <op> $1".
func changedUnion(schema, op string) string {
	return fmt.Sprintf(`SELECT fw.id AS id, fw.modified AS modified
	FROM %[1]s.film_work fw
	WHERE fw.modified %[2]s $1
	UNION
	SELECT fw.id, g.modified
	FROM %[1]s.genre g
	JOIN %[1]s.genre_film_work gfw ON gfw.genre_id = g.id
	JOIN %[1]s.film_work fw ON fw.id = gfw.film_work_id
	WHERE g.modified %[2]s $1
	UNION
	SELECT fw.id, p.modified
	FROM %[1]s.person p
	JOIN %[1]s.person_film_work pfw ON pfw.person_id = p.id
	JOIN %[1]s.film_work fw ON fw.id = pfw.film_work_id
	WHERE p.modified %[2]s $1`, schema, op)
}

// workingSetQuery selects (title id, change time) pairs changed after $1,
// ordered by change time and capped at $2.
func workingSetQuery(schema string) string {
	return fmt.Sprintf(`SELECT id, modified FROM (
	%s
) AS changed
ORDER BY modified
LIMIT $2`, changedUnion(schema, ">"))
}

// boundaryQuery selects every (title id, change time) pair changed exactly
// at $1.
func boundaryQuery(schema string) string {
	return fmt.Sprintf(`SELECT id, modified FROM (
	%s
) AS changed`, changedUnion(schema, "="))
}

// detailsQuery returns one row per (title, person link, genre link) for n ids.
func detailsQuery(schema string, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "$" + strconv.Itoa(i+1)
	}
	return fmt.Sprintf(`SELECT
	fw.id, fw.title, fw.description, fw.rating, fw.type, fw.certificate, fw.created,
	pfw.role, p.id, p.full_name, g.name
FROM %[1]s.film_work fw
LEFT JOIN %[1]s.person_film_work pfw ON pfw.film_work_id = fw.id
LEFT JOIN %[1]s.person p ON p.id = pfw.person_id
LEFT JOIN %[1]s.genre_film_work gfw ON gfw.film_work_id = fw.id
LEFT JOIN %[1]s.genre g ON g.id = gfw.genre_id
WHERE fw.id IN (%[2]s)`, schema, strings.Join(ph, ", "))
}
