// Package assetref finds asset reference markers embedded in a case
// document. A reference is a JSON string value of the form
// "asset://<hex-hash>" pointing at previously uploaded content by hash,
// letting a case reuse an attachment without re-sending its bytes.
package assetref

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Prefix is the reserved marker scheme for asset references.
const Prefix = "asset://"

// ExtractHashes walks doc and returns the hash portion of every reference
// marker found in string values, in document order, duplicates included.
// Object keys are never treated as references. A document that does not
// parse as JSON yields nil.
//
// The walk runs on the token stream rather than a decoded map so that
// object members are visited in the order the document gives them.
func ExtractHashes(doc []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(doc))
	var hashes []string

	// expectKey tracks, per open container, whether the next string token in
	// an object position is a member key (keys are not reference candidates).
	type frame struct {
		object    bool
		expectKey bool
	}
	var stack []frame

	for {
		tok, err := dec.Token()
		if err != nil {
			if len(stack) != 0 {
				return nil // truncated document
			}
			return hashes
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				stack = append(stack, frame{object: true, expectKey: true})
			case '[':
				stack = append(stack, frame{})
			case '}', ']':
				stack = stack[:len(stack)-1]
				if len(stack) > 0 && stack[len(stack)-1].object {
					stack[len(stack)-1].expectKey = true
				}
			}
		case string:
			top := -1
			if len(stack) > 0 {
				top = len(stack) - 1
			}
			if top >= 0 && stack[top].object && stack[top].expectKey {
				stack[top].expectKey = false
				continue
			}
			if rest, ok := strings.CutPrefix(t, Prefix); ok {
				hashes = append(hashes, rest)
			}
			if top >= 0 && stack[top].object {
				stack[top].expectKey = true
			}
		default:
			// numbers, booleans, nulls
			if len(stack) > 0 && stack[len(stack)-1].object {
				stack[len(stack)-1].expectKey = true
			}
		}
	}
}
