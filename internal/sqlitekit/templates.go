package sqlitekit

import (
	"fmt"
	"strings"
)

// Templates holds the parameterized SQL for every entry-store operation,
// generated once per TableConfig and cached by the driver.
// Regenerating is cheap (string formatting), so the driver simply rebuilds
// and swaps this struct whenever the table/schema name changes at runtime.
type Templates struct {
	InsertIgnore             string
	UpdateByHash             string
	SelectByHash             string
	ContainsByHash           string
	CountAll                 string
	CountPartition           string
	CountObservableAll       string
	CountObservablePartition string
	DeleteByHash             string
	DeleteAll                string
	DeletePartition          string
	DeleteExpiredAll         string
	DeleteExpiredPartition   string
	SizeInBytesAll           string
	SizeInBytesPartition     string
	UpdateExpiryByHash       string
	SelectItemsByPartition   string
	SelectItemsAll           string
	SelectParentHashes       string
}

const parentCols = 5

// parentColumnList returns "parent_key_0, parent_hash_0, ..., parent_key_4, parent_hash_4".
func parentColumnList() string {
	s := ""
	for i := 0; i < parentCols; i++ {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("parent_key_%d, parent_hash_%d", i, i)
	}
	return s
}

func parentPlaceholders() string {
	s := ""
	for i := 0; i < parentCols; i++ {
		if i > 0 {
			s += ", "
		}
		s += "?, ?"
	}
	return s
}

func parentAssignments() string {
	s := ""
	for i := 0; i < parentCols; i++ {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("parent_key_%d = ?, parent_hash_%d = ?", i, i)
	}
	return s
}

// BuildTemplates generates the Templates set for cfg. Upsert is a
// two-phase insert-or-update: an INSERT...ON CONFLICT DO NOTHING followed
// by an UPDATE, both of which the entry store runs inside one transaction.
func BuildTemplates(cfg TableConfig) *Templates {
	t := cfg.qualifiedTable()
	cols := "hash, partition_hash, partition, key, utc_expiry, interval, value, compressed, utc_creation, " + parentColumnList()

	tmpl := &Templates{}

	tmpl.InsertIgnore = fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, %s) ON CONFLICT(hash) DO NOTHING`,
		t, cols, parentPlaceholders())

	tmpl.UpdateByHash = fmt.Sprintf(
		`UPDATE %s SET partition = ?, key = ?, utc_expiry = ?, interval = ?, value = ?, compressed = ?, utc_creation = ?, %s WHERE hash = ?`,
		t, parentAssignments())

	tmpl.SelectByHash = fmt.Sprintf(
		`SELECT %s FROM %s WHERE hash = ?`, cols, t)

	tmpl.ContainsByHash = fmt.Sprintf(
		`SELECT 1 FROM %s WHERE hash = ? AND utc_expiry >= ?`, t)

	tmpl.CountAll = fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t)
	tmpl.CountPartition = fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE partition_hash = ?`, t)
	tmpl.CountObservableAll = fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE utc_expiry >= ?`, t)
	tmpl.CountObservablePartition = fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE partition_hash = ? AND utc_expiry >= ?`, t)

	tmpl.DeleteByHash = fmt.Sprintf(`DELETE FROM %s WHERE hash = ?`, t)
	tmpl.DeleteAll = fmt.Sprintf(`DELETE FROM %s`, t)
	tmpl.DeletePartition = fmt.Sprintf(`DELETE FROM %s WHERE partition_hash = ?`, t)
	tmpl.DeleteExpiredAll = fmt.Sprintf(`DELETE FROM %s WHERE utc_expiry < ?`, t)
	tmpl.DeleteExpiredPartition = fmt.Sprintf(`DELETE FROM %s WHERE partition_hash = ? AND utc_expiry < ?`, t)

	tmpl.SizeInBytesAll = fmt.Sprintf(`SELECT COALESCE(SUM(LENGTH(value)), 0) FROM %s`, t)
	tmpl.SizeInBytesPartition = fmt.Sprintf(`SELECT COALESCE(SUM(LENGTH(value)), 0) FROM %s WHERE partition_hash = ?`, t)

	tmpl.UpdateExpiryByHash = fmt.Sprintf(`UPDATE %s SET utc_expiry = ? WHERE hash = ?`, t)

	tmpl.SelectItemsByPartition = fmt.Sprintf(
		`SELECT %s FROM %s WHERE partition_hash = ? AND utc_expiry >= ?`, cols, t)
	tmpl.SelectItemsAll = fmt.Sprintf(
		`SELECT %s FROM %s WHERE utc_expiry >= ?`, cols, t)

	parentHashCols := make([]string, parentCols)
	for i := 0; i < parentCols; i++ {
		parentHashCols[i] = fmt.Sprintf("parent_hash_%d", i)
	}
	tmpl.SelectParentHashes = fmt.Sprintf(
		`SELECT %s FROM %s WHERE hash = ?`, strings.Join(parentHashCols, ", "), t)

	return tmpl
}
