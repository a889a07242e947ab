package step

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Schema identifiers written to FILE_SCHEMA.
const (
	SchemaAP203 = "CONFIG_CONTROL_DESIGN"
	SchemaAP214 = "AUTOMOTIVE_DESIGN { 1 0 10303 214 1 1 1 1 }"
)

// Header carries the HEADER section fields.
type Header struct {
	Description   []string
	Name          string
	TimeStamp     time.Time
	Author        []string
	Organization  []string
	Preprocessor  string
	Originating   string
	Authorization string
	Schema        string
}

// Write commits r and serializes it as an ISO-10303-21 exchange file.
func Write(w io.Writer, h Header, r *Registry) error {
	if err := r.Commit(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "ISO-10303-21;")
	fmt.Fprintln(bw, "HEADER;")
	fmt.Fprintf(bw, "FILE_DESCRIPTION(%s,'2;1');\n", stringList(h.Description))
	fmt.Fprintf(bw, "FILE_NAME(%s,%s,%s,%s,%s,%s,%s);\n",
		quote(h.Name),
		quote(h.TimeStamp.UTC().Format("2006-01-02T15:04:05")),
		stringList(h.Author),
		stringList(h.Organization),
		quote(h.Preprocessor),
		quote(h.Originating),
		quote(h.Authorization),
	)
	fmt.Fprintf(bw, "FILE_SCHEMA((%s));\n", quote(h.Schema))
	fmt.Fprintln(bw, "ENDSEC;")
	fmt.Fprintln(bw, "DATA;")
	for _, e := range r.Entities() {
		fmt.Fprintf(bw, "#%d=%s;\n", e.ID(), FormatEntity(e))
	}
	fmt.Fprintln(bw, "ENDSEC;")
	fmt.Fprintln(bw, "END-ISO-10303-21;")
	return bw.Flush()
}

// FormatEntity renders the right-hand side of an instance line. References
// to uncommitted entities render as #0.
func FormatEntity(e *Entity) string {
	var sb strings.Builder
	if !e.IsComplex() {
		writeRecord(&sb, e.Type, e.Attrs)
		return sb.String()
	}
	sb.WriteByte('(')
	for _, p := range e.Parts {
		writeRecord(&sb, p.Type, p.Attrs)
	}
	sb.WriteByte(')')
	return sb.String()
}

func writeRecord(sb *strings.Builder, typ string, attrs []Value) {
	sb.WriteString(typ)
	sb.WriteByte('(')
	for i, v := range attrs {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeValue(sb, v)
	}
	sb.WriteByte(')')
}

func writeValue(sb *strings.Builder, v Value) {
	switch v := v.(type) {
	case Str:
		sb.WriteString(quote(string(v)))
	case Real:
		sb.WriteString(FormatReal(float64(v)))
	case Int:
		sb.WriteString(strconv.Itoa(int(v)))
	case Bool:
		if v {
			sb.WriteString(".T.")
		} else {
			sb.WriteString(".F.")
		}
	case Enum:
		sb.WriteString("." + string(v) + ".")
	case List:
		sb.WriteByte('(')
		for i, x := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeValue(sb, x)
		}
		sb.WriteByte(')')
	case Typed:
		sb.WriteString(v.Type)
		sb.WriteByte('(')
		writeValue(sb, v.Value)
		sb.WriteByte(')')
	case *Entity:
		sb.WriteString("#" + strconv.Itoa(v.id))
	case derived:
		sb.WriteByte('*')
	default:
		sb.WriteByte('$')
	}
}

// FormatReal renders f with the decimal point Part 21 requires: 1., 0.5,
// 1.E-05.
func FormatReal(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0."
	}
	if f == 0 {
		return "0."
	}
	s := strconv.FormatFloat(f, 'G', -1, 64)
	if strings.Contains(s, ".") {
		return s
	}
	if i := strings.IndexByte(s, 'E'); i >= 0 {
		return s[:i] + "." + s[i:]
	}
	return s + "."
}

// quote renders a Part 21 string literal. Apostrophes and backslashes are
// doubled; characters outside printable ASCII use the \X2\ encoding.
func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for _, r := range s {
		switch {
		case r == '\'':
			sb.WriteString("''")
		case r == '\\':
			sb.WriteString(`\\`)
		case r >= 0x20 && r <= 0x7e:
			sb.WriteRune(r)
		case r <= 0xffff:
			fmt.Fprintf(&sb, `\X2\%04X\X0\`, r)
		default:
			fmt.Fprintf(&sb, `\X4\%08X\X0\`, r)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

func stringList(ss []string) string {
	if len(ss) == 0 {
		return "('')"
	}
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = quote(s)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
