package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// DataTypeKind enumerates the column types understood by the schema manager.
type DataTypeKind string

const (
	Integer    DataTypeKind = "Integer"
	BigInteger DataTypeKind = "BigInteger"
	Text       DataTypeKind = "Text"
	VarChar    DataTypeKind = "VarChar"
	Real       DataTypeKind = "Real"
	Double     DataTypeKind = "Double"
	Boolean    DataTypeKind = "Boolean"
	Timestamp  DataTypeKind = "Timestamp"
	Date       DataTypeKind = "Date"
	UUID       DataTypeKind = "UUID"
	JSON       DataTypeKind = "JSON"
	Binary     DataTypeKind = "Binary"
)

var dataTypeKinds = map[string]DataTypeKind{
	"integer":    Integer,
	"biginteger": BigInteger,
	"text":       Text,
	"varchar":    VarChar,
	"real":       Real,
	"double":     Double,
	"boolean":    Boolean,
	"timestamp":  Timestamp,
	"date":       Date,
	"uuid":       UUID,
	"json":       JSON,
	"binary":     Binary,
}

// DataType is a column type. Length is only meaningful for VarChar.
type DataType struct {
	Kind   DataTypeKind
	Length int
}

// NewVarChar returns a VarChar(n) type.
func NewVarChar(n int) DataType {
	return DataType{Kind: VarChar, Length: n}
}

func (d DataType) String() string {
	if d.Kind == VarChar {
		return fmt.Sprintf("VarChar(%d)", d.Length)
	}
	return string(d.Kind)
}

// ParseDataType parses the String form, e.g. "Integer" or "VarChar(20)".
func ParseDataType(s string) (DataType, error) {
	s = strings.TrimSpace(s)
	name, rest, hasArgs := strings.Cut(s, "(")
	kind, ok := dataTypeKinds[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return DataType{}, fmt.Errorf("unknown data type %q", s)
	}
	dt := DataType{Kind: kind}
	if hasArgs {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(rest), ")"))
		if err != nil || kind != VarChar || n <= 0 {
			return DataType{}, fmt.Errorf("invalid data type %q", s)
		}
		dt.Length = n
	}
	return dt, nil
}

// MarshalJSON encodes the type as its String form.
func (d DataType) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes the String form.
func (d *DataType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
