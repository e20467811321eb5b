// Package vocab folds proposed taxonomy terms into size-bounded global vocabularies.
//
// A Pool grows until it reaches its cap and is frozen from then on. Terms that
// do not already exist in a full pool are mapped onto their closest existing term.
package vocab
