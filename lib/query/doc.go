// Package query provides stateless filter combinators over the rows of a store.
//
// Every combinator takes a Source (usually a store.IStore) and returns the
// matching rows in their original order. Most of them accept a key: with an
// empty key they run on all rows of the table, otherwise on the array stored
// under key, whose object elements are read as {"id": ..., "value": ...} rows.
// A key whose value is not an array is an InvalidArgument error, a missing key
// is an empty array.
//
// Rows without a value (nil) are skipped by the value based combinators. Note
// that this differs from a truthiness check: 0, false and "" are values.
//
// Combinators:
//   - Search: substring, equality and membership match on whole values or a property
//   - In: like Search with element equality for arrays, can run on a stored array
//   - Between: inclusive numeric range
//   - StartsWith / EndsWith: prefix and suffix match on row ids
//   - Regex: regular expression match on string values
//   - Compare: the operators == === != !== > < >= <= on a property
//   - Custom: a user predicate
package query
