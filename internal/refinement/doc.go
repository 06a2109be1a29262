// Package refinement ages clippings captured during a session through three
// unlock-gated stages before they become memory items.
//
// A batch opens in stage 1 (highlight) and unlocks a day later. Advancing
// moves it to stage 2 (annotate) for six more days and then to stage 3
// (select) for twenty-three more, roughly a month in total. Finalizing a
// stage-3 batch plants every selected, highlighted and annotated clipping as
// a memory item and deletes the batch in one store batch.
package refinement
