// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package portal mirrors a conversation between two chat channels that live
// on separate, uncoordinated backends.
//
// Neither backend knows the other's message identifiers, so the mirrored copy
// of a message is never stored. It is re-discovered on every mutation by
// correlation: a history search in a timestamp window around the origin
// message, matching on normalized text.
//
// # Core Types
//
// [Backend] is the collaborator interface each side implements (event stream,
// history, send/edit/delete, reactions, user profiles, channel lookup). The
// slackconn and mmconn packages provide implementations.
//
// [Conn] pairs a Backend with its [IdentityCache]. Mention normalization
// happens through [Conn.Normalize].
//
// [Correlator] locates a message on one side given a [Window] and the
// expected text, and reports tolerance warnings when the match sits close to
// a window bound.
//
// [Dispatcher] consumes one side's events and issues the mirrored mutation
// on the other side. [Supervisor] runs one Dispatcher per direction.
//
// # Echo Prevention
//
// Messages posted by the mirror come back on the opposite side's event stream.
// They are dropped by several layers: bot-originated events, events authored
// by the backend's own account, and edits whose previous snapshot was a bot
// message or whose visible text did not change. Removing any of these layers
// makes the two sides edit each other's mirrors forever.
package portal
