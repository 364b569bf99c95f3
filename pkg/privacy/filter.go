// Package privacy strips sensitive columns and contact details from imported rows
// before they are staged or shown.
package privacy

import (
	"sort"
	"strings"

	"github.com/tinusleroux/crowdbiz-graph/pkg/normalizers"
)

// DeniedColumns are the normalized column names that never leave the filter.
var DeniedColumns = []string{
	"email", "email_address", "e_mail", "contact_email", "personal_email",
	"work_email", "business_email", "mail", "gmail", "outlook",
	"phone", "phone_number", "mobile", "cell", "telephone", "contact_phone",
	"personal_phone", "work_phone", "business_phone", "tel", "cell_phone",
	"address", "street_address", "home_address", "mailing_address",
	"street", "address_line_1", "address_line_2", "street_1", "street_2",
	"personal_address", "residence", "home", "zip", "zipcode", "postal_code",
	"salary", "compensation", "wage", "income", "pay", "earnings",
	"ssn", "social_security", "tax_id", "employee_id_private",
	"personal_notes", "private_notes", "confidential", "internal_notes",
	"private_contact_info", "contact_info",
	"birthday", "birth_date", "date_of_birth", "dob", "age",
}

// qualifiers may prefix a denied column without changing what it holds,
// e.g. home_phone or primary_email.
var qualifiers = map[string]struct{}{
	"home": {}, "work": {}, "personal": {}, "business": {}, "contact": {},
	"private": {}, "primary": {}, "secondary": {}, "alt": {}, "alternate": {},
	"other": {}, "office": {}, "direct": {}, "mobile": {}, "cell": {},
}

// DeniedWords mark a column sensitive wherever they appear in its name, alone
// or as two adjacent words ("e mail", "zip code").
var DeniedWords = []string{
	"email", "emails", "phone", "phones", "telephone", "tel", "mobile", "cell", "fax",
	"address", "addresses", "street", "zip", "zipcode", "postcode", "postal",
	"salary", "salaries", "compensation", "wage", "wages", "income", "earnings", "pay", "bonus",
	"ssn", "socialsecurity", "taxid", "dob", "birth", "birthday", "birthdate",
	"personal", "private", "confidential",
}

// neutralTails end column names that describe an organization, not a contact,
// e.g. company_email_domain.
var neutralTails = map[string]struct{}{"domain": {}}

// Result is a filtered record plus what the filter did to it
type Result struct {
	Record           map[string]string
	RemovedColumns   []string
	SanitizedColumns []string
}

// Policy decides which columns are removed and which values are scrubbed.
type Policy struct {
	denied   map[string]struct{}
	compact  map[string]struct{}
	words    map[string]struct{}
	verbatim map[string]struct{}
}

type Option func(*Policy)

// WithDenied adds column names to the deny-list.
func WithDenied(columns ...string) Option {
	return func(p *Policy) {
		for _, c := range columns {
			p.deny(c)
		}
	}
}

// WithDeniedWords adds words that make any column containing them sensitive.
func WithDeniedWords(words ...string) Option {
	return func(p *Policy) {
		for _, w := range words {
			p.words[normalizers.Alphanumeric(strings.ToLower(w))] = struct{}{}
		}
	}
}

// WithVerbatim keeps the values of the given columns out of text sanitizing.
// It never rescues a denied column.
func WithVerbatim(columns ...string) Option {
	return func(p *Policy) {
		for _, c := range columns {
			p.verbatim[normalizers.NormalizeHeader(c)] = struct{}{}
		}
	}
}

func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		denied:   make(map[string]struct{}, len(DeniedColumns)),
		compact:  make(map[string]struct{}, len(DeniedColumns)),
		words:    make(map[string]struct{}, len(DeniedWords)),
		verbatim: make(map[string]struct{}),
	}
	for _, c := range DeniedColumns {
		p.deny(c)
	}
	WithDeniedWords(DeniedWords...)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Policy) deny(column string) {
	key := normalizers.NormalizeHeader(column)
	p.denied[key] = struct{}{}
	p.compact[strings.ReplaceAll(key, "_", "")] = struct{}{}
}

// With returns a copy of the policy with extra options applied.
func (p *Policy) With(opts ...Option) *Policy {
	cp := &Policy{
		denied:   make(map[string]struct{}, len(p.denied)),
		compact:  make(map[string]struct{}, len(p.compact)),
		words:    make(map[string]struct{}, len(p.words)),
		verbatim: make(map[string]struct{}, len(p.verbatim)),
	}
	for k := range p.denied {
		cp.denied[k] = struct{}{}
	}
	for k := range p.compact {
		cp.compact[k] = struct{}{}
	}
	for k := range p.words {
		cp.words[k] = struct{}{}
	}
	for k := range p.verbatim {
		cp.verbatim[k] = struct{}{}
	}
	for _, opt := range opts {
		opt(cp)
	}
	return cp
}

// IsSensitive matches the normalized column name against the deny-list, then
// its words against the denied words. "E-Mail", "Email (Work)", "Annual Salary"
// and "Notes (Personal)" are sensitive; "company_email_domain" is not.
func (p *Policy) IsSensitive(column string) bool {
	key := normalizers.NormalizeHeader(column)
	if key == "" {
		return false
	}
	if p.matches(key) || p.hasDeniedWord(key) {
		return true
	}

	// home_phone, email_2, work_email_address
	tokens := strings.Split(key, "_")
	for len(tokens) > 1 && isOrdinal(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	for len(tokens) > 1 {
		if _, ok := qualifiers[tokens[0]]; !ok {
			break
		}
		tokens = tokens[1:]
	}
	stripped := strings.Join(tokens, "_")
	if stripped != key && p.matches(stripped) {
		return true
	}
	return p.matches(strings.TrimRight(key, "0123456789_"))
}

func (p *Policy) matches(key string) bool {
	if key == "" {
		return false
	}
	if _, ok := p.denied[key]; ok {
		return true
	}
	_, ok := p.compact[strings.ReplaceAll(key, "_", "")]
	return ok
}

func (p *Policy) hasDeniedWord(key string) bool {
	tokens := strings.Split(key, "_")
	if _, ok := neutralTails[tokens[len(tokens)-1]]; ok {
		return false
	}
	for i, tok := range tokens {
		if _, ok := p.words[tok]; ok {
			return true
		}
		if i > 0 {
			if _, ok := p.words[tokens[i-1]+tok]; ok {
				return true
			}
		}
	}
	return false
}

func isOrdinal(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Columns splits headers into allowed and removed, both in input order.
func (p *Policy) Columns(headers []string) (allowed, removed []string) {
	for _, h := range headers {
		if p.IsSensitive(h) {
			removed = append(removed, h)
		} else {
			allowed = append(allowed, h)
		}
	}
	return allowed, removed
}

// Filter removes every denied key. The input map is not modified.
func (p *Policy) Filter(record map[string]string) map[string]string {
	out := make(map[string]string, len(record))
	for k, v := range record {
		if p.IsSensitive(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Apply filters the record and scrubs contact details from the remaining
// free-text values, reporting removed and sanitized columns in sorted order.
func (p *Policy) Apply(record map[string]string) Result {
	res := Result{Record: make(map[string]string, len(record))}
	for k, v := range record {
		if p.IsSensitive(k) {
			res.RemovedColumns = append(res.RemovedColumns, k)
			continue
		}
		if _, ok := p.verbatim[normalizers.NormalizeHeader(k)]; !ok {
			if clean := Sanitize(v); clean != v {
				res.SanitizedColumns = append(res.SanitizedColumns, k)
				v = clean
			}
		}
		res.Record[k] = v
	}
	sort.Strings(res.RemovedColumns)
	sort.Strings(res.SanitizedColumns)
	return res
}

var defaultPolicy = NewPolicy()

// Default is the policy used by the package level helpers
func Default() *Policy {
	return defaultPolicy
}

func IsSensitive(column string) bool {
	return defaultPolicy.IsSensitive(column)
}

func Filter(record map[string]string) map[string]string {
	return defaultPolicy.Filter(record)
}

func Apply(record map[string]string) Result {
	return defaultPolicy.Apply(record)
}
