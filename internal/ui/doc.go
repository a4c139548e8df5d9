// Package ui implements an interactive terminal dashboard for bulk migrations using bubbletea's Elm architecture.
//
// The dashboard walks through four views:
//  1. [ChooseView] : Pick users or channels
//  2. [ConfirmView] : Review the window and paging taken from the command line
//  3. [ProgressView] : Follow live progress updates and running counters
//  4. [ResultView] : Read the final statistics block and error messages
//
// The [Model] implements bubbletea's Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the migrator; the run itself executes on a goroutine through an
// [Executor].
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, r, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
