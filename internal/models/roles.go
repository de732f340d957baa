package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// RoleList is an ordered list of role ids persisted as a JSON text column
type RoleList []snowflake.ID

// GormDataType stores the list as text on every dialect
func (RoleList) GormDataType() string {
	return "text"
}

func (r RoleList) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]snowflake.ID(r))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *RoleList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = RoleList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported role list column type %T", src)
	}
	if len(raw) == 0 {
		*r = RoleList{}
		return nil
	}
	var ids []snowflake.ID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("decode role list: %w", err)
	}
	*r = ids
	return nil
}

// Contains reports whether id is part of the list
func (r RoleList) Contains(id snowflake.ID) bool {
	for _, v := range r {
		if v == id {
			return true
		}
	}
	return false
}

// Merge appends the ids of other that are not in r yet, keeping r's order first
func (r RoleList) Merge(other RoleList) RoleList {
	out := make(RoleList, 0, len(r)+len(other))
	seen := make(map[snowflake.ID]struct{}, len(r)+len(other))
	for _, list := range []RoleList{r, other} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
