package google

import (
	"fmt"
	"strings"
	"time"

	"bilancio/internal/core"
)

var createdAtLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006",
}

// parseUsers converts a values matrix (as returned by Sheets API) into
// users. Ids are the 1-based data row numbers.
func parseUsers(values [][]interface{}) ([]core.User, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	colName := indexOf(headers, "Name")
	colEmail := indexOf(headers, "Email")
	colImage := indexOf(headers, "Image")
	colCreated := indexOf(headers, "CreatedAt")
	if colName == -1 || colEmail == -1 {
		missing := make([]string, 0, 2)
		if colName == -1 {
			missing = append(missing, "Name")
		}
		if colEmail == -1 {
			missing = append(missing, "Email")
		}
		return nil, fmt.Errorf("unexpected users header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	users := make([]core.User, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		email := safeGet(row, colEmail)
		if email == "" {
			continue
		}
		u := core.User{
			ID:    int64(i),
			Name:  safeGet(row, colName),
			Email: email,
			Image: safeGet(row, colImage),
		}
		if raw := safeGet(row, colCreated); raw != "" {
			t, ok := parseCreatedAt(raw)
			if !ok {
				return nil, fmt.Errorf("row %d: unparsable CreatedAt %q", i+1, raw)
			}
			u.CreatedAt = t
		}
		users = append(users, u)
	}
	return users, nil
}

func parseCreatedAt(s string) (time.Time, bool) {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// indexOf matches headers case-insensitively.
func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
