// Package testmodel holds the entities and the SQLite schema shared by the
// compiler, runner and CLI tests.
package testmodel

import (
	"context"
	"database/sql"
	"time"

	"github.com/shipq/opsql/meta"
)

type Demo struct {
	Id   int64  `db:",key,identity"`
	Code string `db:",size=20,dbtype=varchar"`
	Name string
}

type Client struct {
	Id     int64 `db:",key,identity"`
	Name   string
	Orders []Order `nav:"Id=ClientId"`
}

type Order struct {
	Id       int64 `db:",key,identity"`
	ClientId int64
	Total    float64
	Placed   time.Time
	Client   *Client `nav:"ClientId=Id"`
	Lines    []Line  `nav:"Id=OrderId"`
}

type Line struct {
	Id      int64 `db:",key,identity"`
	OrderId int64
	Sku     string
	Qty     int
}

// Tag is keyed on two columns and has no identity.
type Tag struct {
	Owner int64  `db:",key"`
	Label string `db:",key"`
	Note  *string
}

// Sticker points at a Tag through both of its key columns.
type Sticker struct {
	Id    int64 `db:",key,identity"`
	Owner int64
	Label string
	Tag   *Tag `nav:"Owner=Owner,Label=Label"`
}

// Event has neither a key nor an identity.
type Event struct {
	Kind string
	At   time.Time
}

// Registry returns a registry with every test entity registered.
func Registry() *meta.Registry {
	r := meta.NewRegistry()
	for _, v := range []any{Demo{}, Client{}, Order{}, Line{}, Tag{}, Sticker{}, Event{}} {
		if _, err := r.RegisterType(v); err != nil {
			panic(err)
		}
	}
	return r
}

// Schema creates the test tables in SQLite.
const Schema = `
CREATE TABLE Demo (Id INTEGER PRIMARY KEY AUTOINCREMENT, Code TEXT NOT NULL, Name TEXT NOT NULL);
CREATE TABLE Client (Id INTEGER PRIMARY KEY AUTOINCREMENT, Name TEXT NOT NULL);
CREATE TABLE "Order" (Id INTEGER PRIMARY KEY AUTOINCREMENT, ClientId INTEGER NOT NULL, Total REAL NOT NULL, Placed TEXT NOT NULL);
CREATE TABLE Line (Id INTEGER PRIMARY KEY AUTOINCREMENT, OrderId INTEGER NOT NULL, Sku TEXT NOT NULL, Qty INTEGER NOT NULL);
CREATE TABLE Tag (Owner INTEGER NOT NULL, Label TEXT NOT NULL, Note TEXT, PRIMARY KEY (Owner, Label));
CREATE TABLE Sticker (Id INTEGER PRIMARY KEY AUTOINCREMENT, Owner INTEGER NOT NULL, Label TEXT NOT NULL);
CREATE TABLE Event (Kind TEXT NOT NULL, At TEXT NOT NULL);
`

// Seed is a small data set: ten demos, two clients with three orders and
// five order lines between them.
const Seed = `
INSERT INTO Demo (Code, Name) VALUES
	('c01', 'one'), ('c02', 'two'), ('c03', 'three'), ('c04', 'four'), ('c05', 'five'),
	('c06', 'six'), ('c07', 'seven'), ('c08', 'eight'), ('c09', 'nine'), ('c10', 'ten');
INSERT INTO Client (Name) VALUES ('acme'), ('globex');
INSERT INTO "Order" (ClientId, Total, Placed) VALUES
	(1, 10.5, '2024-01-02 00:00:00'), (1, 20, '2024-02-03 00:00:00'), (2, 7, '2024-03-04 00:00:00');
INSERT INTO Line (OrderId, Sku, Qty) VALUES
	(1, 'a', 1), (1, 'b', 2), (2, 'a', 3), (3, 'c', 4), (3, 'd', 5);
`

// Setup creates and seeds the test tables.
func Setup(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, Seed)
	return err
}
