// File path: internal/schema/resolver.go
package schema

import (
	"strconv"
	"strings"

	"github.com/nicodishanthj/copybook_engine/internal/copybook"
)

// Resolve flattens a parsed field forest into an ordered, byte-addressed
// schema: OCCURS subtrees are expanded into suffixed copies, REDEFINES
// members are pinned to their target's offset, FILLER entries receive
// synthesized names, and every field gets an exact offset, length and decode
// type. Resolution is all-or-nothing.
func Resolve(roots []*copybook.FieldNode) (*Resolved, error) {
	r := &resolver{}
	resolved := &Resolved{}
	for _, root := range roots {
		expanded := r.expand(root, "", occursMeta{})
		for _, node := range expanded {
			if err := r.layout(node, 0); err != nil {
				return nil, err
			}
			if node.length > resolved.RecordLength {
				resolved.RecordLength = node.length
			}
			r.emit(node, resolved)
		}
	}
	return resolved, nil
}

type occursMeta struct {
	occurrence int
	minOccurs  int
	dependsOn  string
}

// node is a working copy of a field tree entry after OCCURS expansion.
// follows names the preceding OCCURS copy this one lays out directly after;
// it is set only on the second and later copies of a redefining OCCURS.
type node struct {
	src       *copybook.FieldNode
	name      string
	redefines string
	follows   string
	children  []*node

	offset int
	length int
	group  int

	meta occursMeta
}

type resolver struct {
	fillerSeq int
	groupSeq  int
}

// expand replaces a node carrying OCCURS n with n sibling copies of its full
// subtree, each copy's name suffixed -{i}. Suffixes propagate to every
// descendant, so nested OCCURS produce compound suffixes and names stay
// unique. Bounded-variable OCCURS expands to the declared maximum; each copy
// records its iteration index and the DEPENDING ON counter so the decoder
// can flag occurrences beyond the runtime count.
func (r *resolver) expand(f *copybook.FieldNode, suffix string, meta occursMeta) []*node {
	if f.Occurs == nil {
		n := &node{src: f, name: f.Name + suffix, redefines: suffixed(f.Redefines, suffix), meta: meta}
		for _, child := range f.Children {
			n.children = append(n.children, r.expand(child, suffix, meta)...)
		}
		return []*node{n}
	}

	copies := make([]*node, 0, f.Occurs.Max)
	for i := 1; i <= f.Occurs.Max; i++ {
		iterSuffix := suffix + "-" + strconv.Itoa(i)
		childMeta := meta
		if f.Occurs.DependingOn != "" {
			childMeta = occursMeta{occurrence: i, minOccurs: f.Occurs.Min, dependsOn: f.Occurs.DependingOn}
		}
		n := &node{src: f, name: f.Name + iterSuffix, meta: childMeta}
		// A redefining OCCURS overlays its target as one block: the first
		// copy is pinned to the target, the rest run consecutively after the
		// previous copy.
		if f.Redefines != "" {
			if i == 1 {
				n.redefines = suffixed(f.Redefines, suffix)
			} else {
				n.follows = copies[i-2].name
			}
		}
		for _, child := range f.Children {
			n.children = append(n.children, r.expand(child, iterSuffix, childMeta)...)
		}
		copies = append(copies, n)
	}
	return copies
}

func suffixed(name, suffix string) string {
	if name == "" {
		return ""
	}
	return name + suffix
}

// layout assigns offsets in a single forward pass. A REDEFINES member is
// pinned to its target's offset and joins the target's redefine group; the
// next sequential offset advances past the group's maximum member length,
// never by each member independently. Group lengths fall out bottom-up.
func (r *resolver) layout(n *node, start int) error {
	n.offset = start
	if len(n.children) == 0 {
		length, err := elementaryLength(n.src)
		if err != nil {
			return err
		}
		n.length = length
		return nil
	}

	cursor := start
	byName := make(map[string]*node, len(n.children))
	for _, child := range n.children {
		childStart := cursor
		switch {
		case child.redefines != "":
			target, ok := byName[child.redefines]
			if !ok {
				return &copybook.SyntaxError{
					Kind:   copybook.UndefinedRedefinesTarget,
					Line:   child.src.Line,
					Detail: child.name + " redefines " + child.redefines + ", which is not declared in the same scope",
				}
			}
			if target.group == 0 {
				r.groupSeq++
				target.group = r.groupSeq
			}
			child.group = target.group
			childStart = target.offset
		case child.follows != "":
			prev, ok := byName[child.follows]
			if !ok {
				return &copybook.SyntaxError{
					Kind:   copybook.UndefinedRedefinesTarget,
					Line:   child.src.Line,
					Detail: child.name + " continues " + child.follows + ", which is not declared in the same scope",
				}
			}
			child.group = prev.group
			childStart = prev.offset + prev.length
		}
		if err := r.layout(child, childStart); err != nil {
			return err
		}
		end := child.offset + child.length
		if child.redefines != "" || child.follows != "" {
			// Overlay members advance the cursor only past the group's
			// maximum extent, never member by member.
			if end > cursor {
				cursor = end
			}
		} else {
			cursor = end
		}
		byName[child.name] = child
	}
	n.length = cursor - start
	return nil
}

// emit appends definitions in document order, renaming FILLER entries to
// synthesized unique names. FILLER fields still occupy offset and length
// space but are marked so decoders exclude them unless asked.
func (r *resolver) emit(n *node, out *Resolved) {
	def := FieldDef{
		Name:          n.name,
		Level:         n.src.Level,
		Offset:        n.offset,
		Length:        n.length,
		RedefineGroup: n.group,
		Occurrence:    n.meta.occurrence,
		MinOccurs:     n.meta.minOccurs,
		DependsOn:     n.meta.dependsOn,
		Conditions:    n.src.Conditions,
	}
	if n.src.Name == "FILLER" || n.src.Name == "" {
		r.fillerSeq++
		def.Name = "FILLER_" + strconv.Itoa(r.fillerSeq)
		def.Filler = true
	}
	if len(n.children) == 0 {
		info, _ := parsePicture(n.src.Picture)
		def.Digits = info.digits
		def.Scale = info.scale
		def.Signed = info.signed
		def.Type = decodeTypeFor(n.src, info)
		if def.Type == TypeZoned {
			def.Sign = n.src.Sign
		}
	} else {
		def.Type = TypeGroup
	}
	out.Fields = append(out.Fields, def)
	for _, child := range n.children {
		r.emit(child, out)
	}
}

type picture struct {
	alnum  bool
	chars  int
	digits int
	scale  int
	signed bool
}

// parsePicture decomposes a PICTURE character string into digit count,
// implied decimal scale and character count. Supported symbols: S X A 9 V
// with parenthesized repeat counts. Edited pictures (Z , . + - CR DB etc.)
// are rejected rather than silently defaulted.
func parsePicture(pic string) (picture, error) {
	var info picture
	if pic == "" {
		return info, &copybook.SyntaxError{Kind: copybook.UnsupportedPicture, Detail: "empty PICTURE character string"}
	}
	s := strings.ToUpper(pic)
	afterV := false
	for i := 0; i < len(s); i++ {
		sym := s[i]
		count := 1
		if i+1 < len(s) && s[i+1] == '(' {
			close := strings.IndexByte(s[i+1:], ')')
			if close < 0 {
				return info, unsupportedPic(pic, "unbalanced repeat count")
			}
			parsed, err := strconv.Atoi(s[i+2 : i+1+close])
			if err != nil || parsed <= 0 {
				return info, unsupportedPic(pic, "invalid repeat count")
			}
			count = parsed
			i += close + 1
		}
		switch sym {
		case 'S':
			if i != 0 || count != 1 {
				return info, unsupportedPic(pic, "S must lead the picture")
			}
			info.signed = true
		case 'X', 'A':
			info.alnum = true
			info.chars += count
		case '9':
			info.chars += count
			info.digits += count
			if afterV {
				info.scale += count
			}
		case 'V':
			if afterV || count != 1 {
				return info, unsupportedPic(pic, "repeated V")
			}
			afterV = true
		default:
			return info, unsupportedPic(pic, "symbol "+string(sym)+" cannot be decomposed into digits and scale")
		}
	}
	if info.alnum && (info.scale > 0 || info.signed) {
		return info, unsupportedPic(pic, "alphanumeric picture cannot carry sign or scale")
	}
	if info.chars == 0 {
		return info, unsupportedPic(pic, "no storage symbols")
	}
	return info, nil
}

func unsupportedPic(pic, detail string) error {
	return &copybook.SyntaxError{
		Kind:   copybook.UnsupportedPicture,
		Detail: "PICTURE " + pic + ": " + detail,
	}
}

// elementaryLength maps PICTURE digits and USAGE to physical bytes:
// DISPLAY stores one byte per character (plus one for a SEPARATE sign),
// packed decimal stores two digits per byte plus a sign nibble, and binary
// widths step 2/4/8 at the 4-, 9- and 18-digit thresholds.
func elementaryLength(f *copybook.FieldNode) (int, error) {
	info, err := parsePicture(f.Picture)
	if err != nil {
		if se, ok := err.(*copybook.SyntaxError); ok && se.Line == 0 {
			se.Line = f.Line
			se.Detail = f.Name + ": " + se.Detail
		}
		return 0, err
	}
	switch f.Usage {
	case copybook.UsagePacked:
		if info.alnum {
			return 0, unsupportedPic(f.Picture, f.Name+": packed decimal requires a numeric picture")
		}
		return (info.digits + 2) / 2, nil
	case copybook.UsageBinary:
		if info.alnum {
			return 0, unsupportedPic(f.Picture, f.Name+": binary requires a numeric picture")
		}
		switch {
		case info.digits <= 4:
			return 2, nil
		case info.digits <= 9:
			return 4, nil
		case info.digits <= 18:
			return 8, nil
		default:
			return 0, unsupportedPic(f.Picture, f.Name+": more than 18 binary digits")
		}
	default:
		length := info.chars
		if !info.alnum && (f.Sign == copybook.SignSeparateLeading || f.Sign == copybook.SignSeparateTrailing) {
			length++
		}
		return length, nil
	}
}

func decodeTypeFor(f *copybook.FieldNode, info picture) DecodeType {
	if info.alnum {
		return TypeAlphanumeric
	}
	switch f.Usage {
	case copybook.UsagePacked:
		return TypePacked
	case copybook.UsageBinary:
		return TypeBinary
	default:
		return TypeZoned
	}
}
