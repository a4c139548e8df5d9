// Package tasks migrates users and channels from the source chat service to the target platform.
//
// # Core Operations
//
// [Migrator] exposes four operations, each returning an aggregated [MigrationResult]:
//
//  1. [Migrator.MigrateUsers] : Bulk user migration
//     - Streams users in pages and groups them into chunks
//     - Runs up to ten chunks concurrently and merges their results at each wave
//     - Block relationships are replayed, migrating absent blockees first
//
//  2. [Migrator.MigrateChannels] : Sequential channel migration
//     - Skips channels without members, with inconsistent attributes or outside the date window
//     - Migrates missing members before writing the channel and its listing metadata
//
//  3. [Migrator.MigrateSingleAccount] : One user and every channel they belong to
//
//  4. [Migrator.MigrateSingleChannel] : One channel by SID or unique name
//
// Every fetched entity receives exactly one [models.Disposition]. Failures of dependent entities
// (blockees, channel members) are reported as messages and never change the parent's disposition.
//
// # Progress Reporting
//
// Operations send [ProgressUpdate] values on an optional channel. Sends never block.
package tasks
