// Package demography defines the fixed age/sex bucket catalog shared by the
// target profile and every population vector, and builds the target
// probability vector Q over it.
package demography

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/turtacn/lsoma/pkg/errors"
)

// Sex is one of the two mutually exclusive sex labels of the census.
type Sex string

const (
	Male   Sex = "H"
	Female Sex = "M"
)

// Sexes lists the sexes in catalog order.
var Sexes = []Sex{Male, Female}

// ageRanges is the ordered age-range catalog.  The open-ended last range is
// written "100+".
var ageRanges = []string{
	"0-4", "5-9", "10-14", "15-19", "20-24", "25-29", "30-34", "35-39",
	"40-44", "45-49", "50-54", "55-59", "60-64", "65-69", "70-74", "75-79",
	"80-84", "85-89", "90-94", "95-99", "100+",
}

// NumAgeRanges is the number of age ranges per sex.
var NumAgeRanges = len(ageRanges)

// NumBuckets is the size of every demographic vector.
var NumBuckets = len(Sexes) * len(ageRanges)

// Bucket is one (sex, age-range) category.
type Bucket struct {
	Sex      Sex
	AgeRange string
	// MinAge is the lower bound of the age range in years.
	MinAge int
	// Index is the bucket's position in every aligned vector.
	Index int
}

// Key returns the canonical column key, e.g. "M_80-84".
func (b Bucket) Key() string {
	return string(b.Sex) + "_" + b.AgeRange
}

var (
	catalog    []Bucket
	keyToIndex map[string]int
)

func init() {
	catalog = make([]Bucket, 0, NumBuckets)
	keyToIndex = make(map[string]int, NumBuckets)
	for _, sex := range Sexes {
		for _, r := range ageRanges {
			b := Bucket{Sex: sex, AgeRange: r, MinAge: lowerBound(r), Index: len(catalog)}
			catalog = append(catalog, b)
			keyToIndex[b.Key()] = b.Index
		}
	}
}

func lowerBound(ageRange string) int {
	s := strings.TrimSuffix(ageRange, "+")
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		panic(fmt.Sprintf("demography: bad catalog age range %q", ageRange))
	}
	return n
}

// AgeRanges returns a copy of the ordered age-range catalog.
func AgeRanges() []string {
	out := make([]string, len(ageRanges))
	copy(out, ageRanges)
	return out
}

// BucketOrder returns the ordered bucket list used to align any population
// matrix to Q: all male ranges in age order, then all female ranges.
func BucketOrder() []Bucket {
	out := make([]Bucket, len(catalog))
	copy(out, catalog)
	return out
}

// BucketKeys returns the canonical keys in catalog order.
func BucketKeys() []string {
	keys := make([]string, len(catalog))
	for i, b := range catalog {
		keys[i] = b.Key()
	}
	return keys
}

// IndexOf returns the catalog index of a canonical bucket key.
func IndexOf(key string) (int, bool) {
	i, ok := keyToIndex[key]
	return i, ok
}

// IndexFor returns the catalog index of a (sex, age-range) pair.
func IndexFor(sex Sex, ageRange string) (int, bool) {
	return IndexOf(string(sex) + "_" + ageRange)
}

// Align maps foreign column keys onto catalog indices.  Every key must be a
// catalog key; an unknown key is a fatal alignment error.
func Align(keys []string) ([]int, error) {
	idx := make([]int, len(keys))
	for i, k := range keys {
		j, ok := keyToIndex[k]
		if !ok {
			return nil, errors.New(errors.ErrCodeSchemaMismatch, "bucket not in catalog").
				WithDetailf("key=%q", k)
		}
		idx[i] = j
	}
	return idx, nil
}

// SliceIndices returns the indices of the buckets of sex whose range lower
// bound lies in [fromAge, toAge].  toAge < 0 means unbounded.
func SliceIndices(sex Sex, fromAge, toAge int) []int {
	var out []int
	for _, b := range catalog {
		if b.Sex != sex || b.MinAge < fromAge {
			continue
		}
		if toAge >= 0 && b.MinAge > toAge {
			continue
		}
		out = append(out, b.Index)
	}
	return out
}

var (
	rangeRe = regexp.MustCompile(`(\d+)\s*(?:a|-)\s*(\d+)`)
	openRe  = regexp.MustCompile(`(\d+)\s*(?:y\s+m[aá]s|\+)`)
)

// NormalizeAgeRange maps census labels such as "De 80 a 84 años",
// "80-84" or "100 y más" onto the catalog spelling.
func NormalizeAgeRange(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	var label string
	if m := openRe.FindStringSubmatch(s); m != nil {
		label = m[1] + "+"
	} else if m := rangeRe.FindStringSubmatch(s); m != nil {
		label = m[1] + "-" + m[2]
	}
	if label == "" {
		return "", errors.New(errors.ErrCodeUnknownAgeRange, "unrecognised age range label").
			WithDetailf("label=%q", raw)
	}
	if _, ok := keyToIndex[string(Male)+"_"+label]; !ok {
		return "", errors.New(errors.ErrCodeUnknownAgeRange, "age range not in bucket catalog").
			WithDetailf("label=%q", raw)
	}
	return label, nil
}

// ParseSex maps census sex labels ("Hombres", "Mujeres", "H", "M") to Sex.
// The aggregate "Total" label is reported as ok=false.
func ParseSex(raw string) (Sex, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "h", "hombre", "hombres", "male":
		return Male, true
	case "m", "mujer", "mujeres", "female":
		return Female, true
	}
	return "", false
}
