package journal

const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	bar_time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	side TEXT NOT NULL,
	reason TEXT NOT NULL,
	entry REAL NOT NULL,
	atr_points REAL NOT NULL,
	spread_points REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_symbol_bar ON decisions(symbol, bar_time);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	volume REAL NOT NULL,
	price REAL NOT NULL,
	sl REAL NOT NULL,
	tp REAL NOT NULL,
	deviation INTEGER NOT NULL,
	attempts INTEGER NOT NULL,
	retries INTEGER NOT NULL,
	retcode TEXT NOT NULL,
	ticket INTEGER NOT NULL,
	result TEXT NOT NULL,
	error TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_time ON orders(time);

CREATE TABLE IF NOT EXISTS risk_ledger (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	date TEXT NOT NULL,
	daily_trade_count INTEGER NOT NULL,
	daily_pnl REAL NOT NULL,
	consecutive_losses INTEGER NOT NULL,
	cooldown_until DATETIME,
	day_start_balance REAL NOT NULL
);
`
