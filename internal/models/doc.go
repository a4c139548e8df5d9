// Package models defines wire types, classifications and persisted entities for the chatmigrate service.
//
// The package contains three categories of types:
//
// 1. Source platform DTOs: entities read from the source chat service
//   - [SourceUser] : a user with its block list and admin-block timestamp
//   - [SourceChannel] : a private channel whose unique name encodes its members
//   - [UserChannelRef] : the lightweight user to channel association
//   - [Member] : a channel member identity
//
// 2. Target platform DTOs: requests and resources of the target chat platform
//   - [UserUpsertRequest], [UserResource], [UserMetadata]
//   - [ChannelUpsertRequest], [ChannelResource], [ChannelMetadata]
//
// 3. Persistent Entities: database-backed records of migration runs
//   - [MigrationRun] : one invocation of a migration operation with its counters
//   - [EntityOutcome] : the disposition of a single entity within a run
//
// [Disposition] and [EntityKind] classify every fetched entity. [Counters] holds the per-kind tallies shared by
// the orchestrator and the run history.
//
// [MigrationRun] and [EntityOutcome] implement [Record]; the repositories package satisfies [Repository] for both.
package models
