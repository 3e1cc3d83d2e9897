// Package domain contains pure, dependency-free domain models and types
// for the tally engine.
package domain

import (
	"maps"
	"reflect"
	"slices"
)

// Key represents a type-safe generic key for accessing values in State.
// The type parameter T ensures compile-time type safety when getting and
// setting values, eliminating the need for runtime type assertions.
type Key[T any] struct{ name string }

// NewKey creates a new Key with the specified name and type.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the string form of the key.
func (k Key[T]) Name() string { return k.name }

// Predefined state keys used throughout a tally run.
var (
	// KeyQuestion stores the question being tallied.
	KeyQuestion = Key[Question]{"question"}

	// KeyEncodedBallots stores the raw encoded rankings, one per voter.
	KeyEncodedBallots = Key[[]string]{"encoded_ballots"}

	// KeyChoices stores rankings that were already decoded upstream, one
	// selection list per voter.
	KeyChoices = Key[[][]int]{"choices"}

	// KeyBallots stores the decoded ballots accepted into the count.
	KeyBallots = Key[[]Ballot]{"ballots"}

	// KeyBallotTotals stores valid, blank and null counts.
	KeyBallotTotals = Key[Totals]{"ballot_totals"}

	// KeyTally stores the round engine's final state.
	KeyTally = Key[*Tally]{"tally"}

	// KeyResult stores the projected per-answer result.
	KeyResult = Key[*TallyResult]{"result"}

	// Execution context keys for tracking metadata across a run.

	// KeyTallyID stores the unique identifier of this tally run.
	KeyTallyID = Key[string]{"execution.tally_id"}

	// KeyElectionID stores the identifier of the election being counted.
	KeyElectionID = Key[string]{"execution.election_id"}

	// KeyMethod stores the counting method identifier.
	KeyMethod = Key[string]{"execution.method"}
)

// deepCopyValue creates a deep copy of a value so that callers of Get can
// never reach into another unit's data.
func deepCopyValue(value any) any {
	if value == nil {
		return nil
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return value
		}
		newSlice := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			newSlice.Index(i).Set(reflect.ValueOf(deepCopyValue(v.Index(i).Interface())))
		}
		return newSlice.Interface()

	case reflect.Map:
		if v.IsNil() {
			return value
		}
		newMap := reflect.MakeMap(v.Type())
		for _, key := range v.MapKeys() {
			newMap.SetMapIndex(key, reflect.ValueOf(deepCopyValue(v.MapIndex(key).Interface())))
		}
		return newMap.Interface()

	case reflect.Ptr:
		if v.IsNil() {
			return value
		}
		newPtr := reflect.New(v.Elem().Type())
		newPtr.Elem().Set(reflect.ValueOf(deepCopyValue(v.Elem().Interface())))
		return newPtr.Interface()

	case reflect.Struct:
		// Unexported fields are left zero; every domain type exports its data.
		newStruct := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if newStruct.Field(i).CanSet() {
				newStruct.Field(i).Set(reflect.ValueOf(deepCopyValue(v.Field(i).Interface())))
			}
		}
		return newStruct.Interface()

	default:
		return value
	}
}

// State is an immutable collection of tally data that flows through the
// pipeline. It uses copy-on-write semantics so one unit can never observe a
// mutation made by another.
type State struct {
	data map[string]any
}

// NewState creates a new empty State.
func NewState() State {
	return State{
		data: make(map[string]any),
	}
}

// Get retrieves a value from the State with compile-time type safety.
// The returned value is a deep copy.
//
// Example:
//
//	question, ok := Get(state, KeyQuestion)
//	if !ok {
//	    // handle missing value
//	}
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, exists := s.data[key.name]
	if !exists {
		return zero, false
	}

	copied := deepCopyValue(value)
	val, ok := copied.(T)
	return val, ok
}

// With creates a new State with the specified key-value pair added or
// updated, leaving the original unchanged.
//
// Example:
//
//	newState := With(state, KeyEncodedBallots, []string{"123", "21"})
func With[T any](s State, key Key[T], value T) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any)
	}
	newData[key.name] = deepCopyValue(value)
	return State{data: newData}
}

// WithMultiple creates a new State with multiple key-value pairs added or
// updated using a single clone.
func (s State) WithMultiple(updates map[string]any) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any)
	}
	for k, v := range updates {
		newData[k] = deepCopyValue(v)
	}
	return State{data: newData}
}

// Keys returns all keys present in the State in sorted order.
func (s State) Keys() []string {
	return slices.Sorted(maps.Keys(s.data))
}

// ExecutionContext carries run metadata that middleware reads for logging,
// tracing and metrics labels.
type ExecutionContext struct {
	TallyID    string
	ElectionID string
	Method     string
}

// WithExecutionContext returns a new State carrying the execution metadata.
func (s State) WithExecutionContext(ctx ExecutionContext) State {
	return s.WithMultiple(map[string]any{
		KeyTallyID.name:    ctx.TallyID,
		KeyElectionID.name: ctx.ElectionID,
		KeyMethod.name:     ctx.Method,
	})
}

// GetExecutionContext extracts execution metadata from the State. The
// boolean is false unless every field was set.
func (s State) GetExecutionContext() (ExecutionContext, bool) {
	tallyID, ok1 := Get(s, KeyTallyID)
	electionID, ok2 := Get(s, KeyElectionID)
	method, ok3 := Get(s, KeyMethod)
	if !ok1 || !ok2 || !ok3 {
		return ExecutionContext{}, false
	}
	return ExecutionContext{TallyID: tallyID, ElectionID: electionID, Method: method}, true
}
